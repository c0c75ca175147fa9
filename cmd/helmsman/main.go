package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"helmsman/internal/config"
	"helmsman/internal/engine"
	"helmsman/internal/executor"
	"helmsman/internal/gateway/binance"
	"helmsman/internal/logger"
	"helmsman/internal/market"
	"helmsman/internal/profile"
	"helmsman/internal/store"
	httpapi "helmsman/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := os.Getenv("HELMSMAN_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logger.SetOutput(os.Stdout, cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，symbols=%v）", cfg.App.Env, cfg.Market.Symbols)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
	logger.Infof("helmsman 已退出")
}

func run(ctx context.Context, cfg *config.Config) error {
	source, err := buildSource(cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	journal, err := store.NewJournal(cfg.Store.SQLitePath)
	if err != nil {
		return fmt.Errorf("初始化交易日志失败: %w", err)
	}
	defer journal.Close()

	var profiles *profile.Registry
	if dir := strings.TrimSpace(cfg.Profile.Dir); dir != "" {
		path := filepath.Join(dir, "profiles.yaml")
		if _, statErr := os.Stat(path); statErr == nil {
			profiles, err = profile.NewRegistry(path, cfg.Profile.Watch)
			if err != nil {
				return fmt.Errorf("加载离场档案失败: %w", err)
			}
		} else {
			logger.Warnf("未找到离场档案 %s, 全部 symbol 使用默认离场参数", path)
		}
	}

	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Options{
		Config:     cfg,
		Source:     source,
		Dispatcher: dispatcher,
		Journal:    journal,
		Profiles:   profiles,
	})
	if err != nil {
		return fmt.Errorf("初始化引擎失败: %w", err)
	}

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Engine:  eng,
		Journal: journal,
	})
	if err != nil {
		return fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error {
		logger.Infof("HTTP 服务监听 %s", server.Addr())
		return server.Start(gctx)
	})
	return g.Wait()
}

func buildSource(cfg *config.Config) (market.Source, error) {
	src := cfg.Market.ResolveActiveSource()
	gw, err := binance.New(binance.Config{
		RESTBaseURL:  src.RESTBaseURL,
		WSBaseURL:    src.WSBaseURL,
		ProxyEnabled: src.Proxy.Enabled,
		RESTProxyURL: src.Proxy.RESTURL,
		WSProxyURL:   src.Proxy.WSURL,
		RatePerSec:   src.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化行情源失败: %w", err)
	}
	return gw, nil
}

func buildDispatcher(cfg *config.Config) (*executor.Dispatcher, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Executor.Mode))
	switch mode {
	case "", "paper":
		return executor.NewDispatcher(executor.NewPaperGateway(), cfg.Executor), nil
	default:
		return nil, fmt.Errorf("不支持的执行模式 %q（当前仅支持 paper）", cfg.Executor.Mode)
	}
}
