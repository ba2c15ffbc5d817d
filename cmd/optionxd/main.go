// Command optionxd is the OptionX client runtime daemon: it loads
// configuration, wires the Trade Lifecycle Core (capability provider, event
// bus, scheduler, validator-backed engine) to the Intrade Bar reference
// Broker Adapter, and runs until interrupted. Wiring style follows the
// teacher's own daemon bootstrap shape (adapter/oauth.go's
// LoadSaxoEnvironmentConfig + logger-first construction order).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/optionx/optionx/adapter/intradebar"
	"github.com/optionx/optionx/internal/capability"
	"github.com/optionx/optionx/internal/engine"
	"github.com/optionx/optionx/internal/eventbus"
	"github.com/optionx/optionx/internal/scheduler"
)

// tickIntervalMS is how often the scheduler's worker drives Engine.Tick and
// drains the bus's async queue (spec.md §5, "Concurrency & resource model").
const tickIntervalMS = 250

func main() {
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "optionxd: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	sugar := logger.Sugar()
	if err := run(sugar); err != nil {
		sugar.Fatalw("optionxd exited with error", "error", err)
	}
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if os.Getenv("OPTIONX_ENV") == "dev" {
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

func loadViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("optionxd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/optionxd")
	v.SetEnvPrefix("OPTIONX")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Malformed config is fatal; a missing one just means "use defaults
			// plus environment variables", matching the teacher's fallback to
			// os.Getenv when no file is present (adapter/oauth.go).
			panic(fmt.Sprintf("optionxd: reading config: %v", err))
		}
	}
	return v
}

func run(logger *zap.SugaredLogger) error {
	v := loadViper()

	cfg, err := intradebar.LoadConfig(v)
	if err != nil {
		return fmt.Errorf("load adapter config: %w", err)
	}

	bus := eventbus.New()
	provider := capability.NewMemoryProvider()
	sched := scheduler.New()

	eng := engine.New(bus, provider, logger.Named("engine"), nil)
	if err := eng.OnStart(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	store := intradebar.NewMemorySessionStore()
	broker := intradebar.New(cfg, store, bus, eng, provider, logger.Named("adapter"))
	if err := broker.OnStart(); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}

	sched.AddPeriodic("engine-tick", tickIntervalMS, func(*scheduler.Handle) {
		now := time.Now().UnixMilli()
		bus.Process()
		eng.Tick(now)
	})
	sched.Run(tickIntervalMS)

	logger.Infow("optionxd started", "environment", cfg.Environment, "tick_interval_ms", tickIntervalMS)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infow("optionxd shutting down")
	sched.Shutdown()
	broker.OnShutdown()
	eng.OnShutdown()

	return nil
}
