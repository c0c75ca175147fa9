package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"helmsman/internal/logger"
	"helmsman/internal/position"
)

// Profile 是一套命名的离场参数预设：追踪模式 + 锁利里程碑。
// 同一个 bot 可以给不同 symbol 挂不同预设。
type Profile struct {
	ID            string                  `yaml:"id"`
	Description   string                  `yaml:"description"`
	Trailing      position.TrailingConfig `yaml:"trailing"`
	ProfitTargets []position.ProfitTarget `yaml:"profit_targets"`
}

// fileConfig 映射 profile YAML 文件。
type fileConfig struct {
	Profiles map[string]Profile `yaml:"profiles"`
	Symbols  map[string]string  `yaml:"symbols"` // symbol -> profile id
}

// Snapshot 是一次完整加载的不可变快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]Profile
	Symbols  map[string]string
}

// ChangeListener 在热重载成功后触发。
type ChangeListener func(Snapshot)

// fileSchema 约束 profile 文件的结构，加载时先过 schema 再过
// 各配置自身的 Validate，坏文件不会替换现有快照。
const fileSchema = `{
  "type": "object",
  "properties": {
    "profiles": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "description": {"type": "string"},
          "trailing": {
            "type": "object",
            "properties": {
              "mode": {"enum": ["fixed_pct", "atr_distance", "staircase", "peak_pct"]},
              "activation_roi": {"type": "number", "exclusiveMinimum": 0},
              "trail_pct": {"type": "number"},
              "atr_multiplier": {"type": "number"},
              "lock_fraction": {"type": "number"},
              "steps": {
                "type": "array",
                "items": {
                  "type": "object",
                  "properties": {
                    "trigger_roi": {"type": "number"},
                    "trail_pct": {"type": "number"}
                  },
                  "required": ["trigger_roi", "trail_pct"]
                }
              }
            },
            "required": ["mode", "activation_roi"]
          },
          "profit_targets": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "trigger_roi": {"type": "number", "exclusiveMinimum": 0},
                "lock_fraction": {"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 1}
              },
              "required": ["trigger_roi", "lock_fraction"]
            }
          }
        },
        "required": ["trailing"]
      }
    },
    "symbols": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  },
  "required": ["profiles"]
}`

var compiledSchema = jsonschema.MustCompileString("profiles.json", fileSchema)

// Registry 管理离场预设，支持文件热重载。
type Registry struct {
	path string
	log  *logger.Logger

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取 profile 文件；watch 为 true 时监听文件变更。
func NewRegistry(path string, watch bool) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile registry 需要文件路径")
	}
	r := &Registry{path: path, log: logger.Named("profile")}
	if err := r.reload(); err != nil {
		return nil, err
	}
	if watch {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("监听 profile 文件失败: %w", err)
		}
		v.OnConfigChange(func(evt fsnotify.Event) {
			if err := r.reload(); err != nil {
				r.log.Errorf("profile 重载失败，保留旧快照: %v", err)
				return
			}
			r.notifyListeners()
		})
		v.WatchConfig()
	}
	return r, nil
}

// Snapshot 返回当前快照的副本。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Subscribe 注册热重载回调。
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// ForSymbol 返回 symbol 绑定的预设；没有绑定时 ok=false。
func (r *Registry) ForSymbol(symbol string) (Profile, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.snapshot.Symbols[symbol]
	if !ok {
		return Profile{}, false
	}
	p, ok := r.snapshot.Profiles[id]
	return p, ok
}

// Get 返回指定 ID 的预设。
func (r *Registry) Get(id string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Profiles[strings.TrimSpace(id)]
	return p, ok
}

func (r *Registry) reload() error {
	cfg, err := readProfileFile(r.path)
	if err != nil {
		return err
	}

	profiles := make(map[string]Profile, len(cfg.Profiles))
	for name, p := range cfg.Profiles {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			p.ID = strings.TrimSpace(name)
		}
		if err := p.Trailing.Validate(); err != nil {
			return fmt.Errorf("profile %q: %w", p.ID, err)
		}
		prev := 0.0
		for i, tgt := range p.ProfitTargets {
			if tgt.TriggerROI <= prev {
				return fmt.Errorf("profile %q: profit_targets[%d] trigger_roi 必须严格递增", p.ID, i)
			}
			prev = tgt.TriggerROI
		}
		profiles[p.ID] = p
	}

	symbols := make(map[string]string, len(cfg.Symbols))
	for sym, id := range cfg.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		id = strings.TrimSpace(id)
		if _, ok := profiles[id]; !ok {
			return fmt.Errorf("symbol %s 绑定了不存在的 profile %q", sym, id)
		}
		symbols[sym] = id
	}

	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
		Symbols:  symbols,
	}
	r.mu.Unlock()
	r.log.Infof("已加载 %d 个离场预设 (%s)", len(profiles), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Errorf("profile listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Profiles: make(map[string]Profile, len(src.Profiles)),
		Symbols:  make(map[string]string, len(src.Symbols)),
	}
	for id, p := range src.Profiles {
		dst.Profiles[id] = p
	}
	for sym, id := range src.Symbols {
		dst.Symbols[sym] = id
	}
	return dst
}

func readProfileFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("读取 profile 文件失败: %w", err)
	}

	// 先用 schema 校验结构，再解码为强类型。
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fileConfig{}, fmt.Errorf("解析 profile YAML 失败: %w", err)
	}
	if err := compiledSchema.Validate(normalizeYAML(generic)); err != nil {
		return fileConfig{}, fmt.Errorf("profile 文件不符合 schema: %w", err)
	}

	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return fileConfig{}, fmt.Errorf("解析 profile 文件失败: %w", err)
	}
	return cfg, nil
}

// normalizeYAML 把 yaml 解码出的 map[any]any 转成 jsonschema
// 认识的 map[string]any。
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalizeYAML(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprintf("%v", k)
			}
			out[key] = normalizeYAML(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalizeYAML(child)
		}
		return out
	case int:
		return json.Number(fmt.Sprintf("%d", val))
	default:
		return val
	}
}
