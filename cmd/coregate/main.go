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

	"github.com/arcmesh/coregate/config"
	"github.com/arcmesh/coregate/eventlog"
	"github.com/arcmesh/coregate/lifecycle"
	"github.com/arcmesh/coregate/metrics"
	"github.com/arcmesh/coregate/registry"
)

var (
	configFile = flag.String("config", "coregate.yaml", "Path to configuration file")
	validate   = flag.Bool("validate", false, "Validate configuration and exit")
	version    = flag.Bool("version", false, "Print version and exit")
)

const Version = "v0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("coregate %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Println("configuration is valid")
		os.Exit(0)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	m := metrics.NewMetrics()

	problems := lifecycle.NewUncaughtProblemHandler(logger, func() { os.Exit(1) })

	factories := registry.Default(m, logger)

	watcher, err := config.NewConfigWatcher(*configFile, logger)
	if err != nil {
		logger.Fatal("failed to start config watcher", zap.Error(err))
	}
	defer watcher.Close()
	configCh := watcher.Subscribe()

	tree, err := registry.Build(cfg, m, logger, factories, problems)
	if err != nil {
		logger.Fatal("failed to build component tree", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go followEvents(ctx, logger, tree.Events().Head())

	if err := tree.Init(ctx, false); err != nil {
		logger.Fatal("init failed", zap.Error(err))
	}
	if err := tree.Start(ctx, false); err != nil {
		logger.Fatal("start failed", zap.Error(err))
	}

	logger.Info("coregate up", zap.String("version", Version), zap.String("config", *configFile))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	drainTimeout := cfg.DrainTimeout

runLoop:
	for {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			break runLoop
		case newCfg := <-configCh:
			logger.Info("config change detected, reloading component tree")
			reloaded, err := tree.Reload(ctx, func() (*lifecycle.ComponentTree, error) {
				return registry.Build(newCfg, m, logger, factories, problems)
			})
			if err != nil {
				logger.Error("reload failed, process has no running tree", zap.Error(err))
				os.Exit(1)
			}
			tree = reloaded
			drainTimeout = newCfg.DrainTimeout
			go followEvents(ctx, logger, tree.Events().Head())
			logger.Info("reload complete")
		}
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), drainTimeout+5*time.Second)
	defer stopCancel()
	if err := tree.Stop(stopCtx, false); err != nil {
		logger.Error("stop failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("coregate down")
}

// followEvents walks the tree's event chain from head, logging each
// lifecycle event as it is emitted. It is the reference consumer for the
// event chain; a real deployment might instead fan events out to a
// metrics sink or an external audit log.
func followEvents(ctx context.Context, logger *zap.Logger, node *eventlog.Node[lifecycle.Event]) {
	for {
		ev := node.Payload()
		logger.Debug("lifecycle event", zap.String("source", ev.Source), zap.String("message", ev.Message), zap.Time("time", ev.Time))
		next, err := node.Next(ctx)
		if err != nil {
			return
		}
		node = next
	}
}
