// fieldgated is the collector daemon: it receives sensor frames over the
// radio, validates and stores them, and serves the results over HTTP,
// WebSocket and the configured egress sinks.
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
	"github.com/fieldgate/fieldgate/internal/egress"
	"github.com/fieldgate/fieldgate/internal/gateway"
	"github.com/fieldgate/fieldgate/internal/node"
	"github.com/fieldgate/fieldgate/internal/radio"
	"github.com/fieldgate/fieldgate/internal/state"
	"github.com/fieldgate/fieldgate/internal/store"
	"github.com/fieldgate/fieldgate/internal/uplink"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "fieldgated:", err)
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

	db, err := store.Open(cfg.Gateway.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		return err
	}

	registry, err := state.New(db)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rad, err := buildRadio(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rad.Close()

	sinks, err := buildEgress(cfg, log)
	if err != nil {
		return err
	}
	defer sinks.Close()

	if cfg.Uplink.Enabled {
		mgr := uplink.New(cfg.Uplink, db, log)
		go mgr.Start(ctx) //nolint:errcheck
	}

	return gateway.New(cfg, db, rad, registry, sinks, log).Start(ctx)
}

// buildRadio selects the configured driver. In simulate mode the gateway
// side of an in-memory loop pair is used and an embedded sensor node runs
// against the other side, so a development gateway produces live data
// with no hardware attached.
func buildRadio(ctx context.Context, cfg *config.Config, log *zap.Logger) (radio.Radio, error) {
	if cfg.Gateway.Simulate {
		gwSide, nodeSide := radio.NewLoopPair(log)
		sim := node.New(cfg.Node, radio.ParamsFromConfig(cfg.Radio), nodeSide,
			node.NewSimSensor(0, 55, 150), node.NewSimBattery(0.05),
			log.Named("simnode"))
		go func() {
			if err := sim.Start(ctx); err != nil {
				log.Error("simulated node stopped", zap.Error(err))
			}
		}()
		log.Info("simulate mode: embedded node over loopback radio")
		return gwSide, nil
	}
	return radio.New(cfg.Radio, log)
}

func buildEgress(cfg *config.Config, log *zap.Logger) (*egress.Fanout, error) {
	var sinks []egress.Sink
	if cfg.Egress.Line.Enabled {
		sinks = append(sinks, egress.NewLineSink(os.Stdout))
	}
	if cfg.Egress.MQTT.Enabled {
		s, err := egress.NewMQTTSink(cfg.Egress.MQTT)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Egress.NATS.Enabled {
		s, err := egress.NewNATSSink(cfg.Egress.NATS)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	log.Info("egress configured", zap.Int("sinks", len(sinks)))
	return egress.NewFanout(log, sinks...), nil
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
