package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取主配置及其 include 链，合并后应用默认值并校验。
// 任何校验失败都在启动期中止，绝不带病进入交易循环。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("配置路径不能为空")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	files, err := expandIncludes(abs, make(map[string]bool), make(map[string]bool))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		sub := viper.New()
		sub.SetConfigFile(file)
		if err := sub.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", file, err)
		}
		if err := v.MergeConfigMap(sub.AllSettings()); err != nil {
			return nil, fmt.Errorf("合并配置文件 %s 失败: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	setKeys := make(keySet)
	markSetKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandIncludes 深度优先展开 include 链, 被包含的文件排在前面,
// 让主文件的键覆盖 include 的同名键。stack 用于检测环。
func expandIncludes(path string, seen, stack map[string]bool) ([]string, error) {
	path = filepath.Clean(path)
	if stack[path] {
		return nil, fmt.Errorf("配置 include 成环: %s", path)
	}
	if seen[path] {
		return nil, nil
	}
	stack[path] = true

	includes, err := readIncludeList(path)
	if err != nil {
		return nil, fmt.Errorf("解析 %s 的 include 失败: %w", path, err)
	}

	dir := filepath.Dir(path)
	var ordered []string
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(dir, inc)
		}
		sub, err := expandIncludes(inc, seen, stack)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, sub...)
	}

	delete(stack, path)
	seen[path] = true
	return append(ordered, path), nil
}

func readIncludeList(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}

	var items []any
	switch val := raw.(type) {
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("include 必须是字符串数组")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include 只接受字符串项")
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

// markSetKeys 把配置树里显式出现过的键打平记入 dest,
// applyDefaults 据此区分"用户写了零值"和"用户没写"。
func markSetKeys(prefix string, node any, dest keySet) {
	key := func(k string) (string, bool) {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			return "", false
		}
		if prefix != "" {
			k = prefix + "." + k
		}
		return k, true
	}
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			if next, ok := key(k); ok {
				markSetKeys(next, v, dest)
			}
		}
	case map[any]any:
		for k, v := range val {
			if str, ok := k.(string); ok {
				if next, ok := key(str); ok {
					markSetKeys(next, v, dest)
				}
			}
		}
	case []any:
		if prefix != "" {
			dest.mark(prefix)
		}
		for _, item := range val {
			markSetKeys(prefix, item, dest)
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}
