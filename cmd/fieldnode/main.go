// fieldnode is the sensor node daemon: one measure-decide-send cycle per
// interval, with adaptive transmission and bounded retry. Without real
// hardware it runs the simulated sensor and battery, which is also how
// the wire protocol is exercised against a gateway on a developer desk.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fieldgate/fieldgate/internal/config"
	"github.com/fieldgate/fieldgate/internal/node"
	"github.com/fieldgate/fieldgate/internal/radio"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "fieldnode:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	rad, err := radio.New(cfg.Radio, log)
	if err != nil {
		return err
	}
	defer rad.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n := node.New(cfg.Node, radio.ParamsFromConfig(cfg.Radio), rad,
		node.NewSimSensor(int64(cfg.Node.ID), 55, 150),
		node.NewSimBattery(0.05),
		log)
	return n.Start(ctx)
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
