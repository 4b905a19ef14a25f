package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paneltalk/config"
	"github.com/BaSui01/paneltalk/dialogue"
	"github.com/BaSui01/paneltalk/persona"
	"github.com/BaSui01/paneltalk/session"
)

// =============================================================================
// 🎙️ run 命令：在终端跑一场讨论
// =============================================================================

// runLocal 在前台跑一场讨论，把每条发言打印到标准输出。
// 用于无服务端的本地演示与冒烟验证；Ctrl-C 取消讨论。
func runLocal(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	topic := fs.String("topic", "", "Discussion topic")
	turns := fs.Int("turns", 0, "Max successful turns (overrides config)")
	offline := fs.Bool("offline", false, "Force the offline template generator")
	fs.Parse(args)

	if *topic == "" {
		fmt.Fprintln(os.Stderr, "run: --topic is required")
		fs.Usage()
		os.Exit(1)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *offline {
		cfg.LLM.Offline = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// 终端模式日志走 stderr，stdout 留给讨论内容
	logCfg := cfg.Log
	logCfg.OutputPaths = []string{"stderr"}
	logger := initLogger(logCfg)
	defer logger.Sync()

	store, err := openPersonaStore(cfg.Persona, logger)
	if err != nil {
		logger.Fatal("Failed to open persona store", zap.Error(err))
	}
	defer func() {
		if closer, ok := store.(interface{ Close() error }); ok {
			closer.Close()
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Persona.SeedDefaults {
		if err := persona.Seed(ctx, store); err != nil {
			logger.Fatal("Failed to seed persona store", zap.Error(err))
		}
	}
	speakers, err := store.List(ctx)
	if err != nil {
		logger.Fatal("Failed to list speakers", zap.Error(err))
	}
	if len(speakers) == 0 {
		speakers = persona.Defaults()
	}

	mgrCfg := session.DefaultConfig()
	mgrCfg.Dialogue.MaxTurns = cfg.Dialogue.MaxTurns
	mgrCfg.Dialogue.ModeratorCadence = cfg.Dialogue.ModeratorCadence
	mgrCfg.Dialogue.TerminationMarkers = cfg.Dialogue.TerminationMarkers
	if cfg.Dialogue.PerTurnTimeout > 0 {
		mgrCfg.Dialogue.PerTurnTimeout = cfg.Dialogue.PerTurnTimeout
	}
	manager := session.NewManager(mgrCfg, buildGeneratorFactory(cfg.LLM, logger), logger)

	s, events, err := manager.Start(ctx, session.StartRequest{
		Topic:    *topic,
		Speakers: speakers,
		MaxTurns: *turns,
	})
	if err != nil {
		logger.Fatal("Failed to start discussion", zap.Error(err))
	}

	fmt.Printf("=== Panel discussion %s ===\n", s.ID())
	fmt.Printf("Topic: %s\n\n", *topic)

	for ev := range events {
		switch ev.Type {
		case dialogue.EventTurn:
			fmt.Printf("[%d] %s:\n%s\n\n", ev.Turn.Seq, ev.Turn.Speaker, ev.Turn.Content)
		case dialogue.EventTermination:
			fmt.Printf("=== Discussion ended: %s after %d turns ===\n",
				ev.Termination.Reason, ev.Termination.FinalTurnCount)
			if ev.Termination.Detail != "" {
				fmt.Printf("    %s\n", ev.Termination.Detail)
			}
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Session manager shutdown", zap.Error(err))
	}
}
