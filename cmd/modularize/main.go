// Copyright 2024-2026 The Stitch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command modularize runs the composed example app over an in-process
// pipe: an accept loop serving the app handler on one side, a client
// demo exercising the app, calc, and clock services on the other.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"stitchrpc.dev/stitch"
	"stitchrpc.dev/stitch/example/app"
	"stitchrpc.dev/stitch/example/clock"
	"stitchrpc.dev/stitch/example/multi"
	"stitchrpc.dev/stitch/mempipe"
)

type config struct {
	Version    string        `env:"APP_VERSION" envDefault:"0.1.0"`
	TickPeriod time.Duration `env:"TICK_PERIOD" envDefault:"1s"`
	Ticks      int           `env:"DEMO_TICKS" envDefault:"3"`
	Buffer     int           `env:"PIPE_BUFFER" envDefault:"1"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("modularize demo failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	conn, endpoint := mempipe.New[app.Request, app.Response](cfg.Buffer)
	defer conn.Close()

	clockHandler := clock.NewHandler(cfg.TickPeriod)
	defer clockHandler.Stop()
	handler := app.Handler{
		Multi:   multi.Handler{Clock: clockHandler},
		Version: cfg.Version,
	}

	go func() {
		if err := app.Serve(ctx, endpoint, handler, stitch.WithLogger(logger)); err != nil && ctx.Err() == nil {
			logger.Warn("serve loop ended", slog.Any("error", err))
		}
	}()

	return clientDemo(ctx, conn, cfg.Ticks)
}

func clientDemo(ctx context.Context, conn *mempipe.Conn[app.Request, app.Response], ticks int) error {
	client := app.NewClient(conn)

	version, err := client.Version(ctx)
	if err != nil {
		return fmt.Errorf("app version: %w", err)
	}
	fmt.Printf("app service: version %s\n", version)

	sum, err := client.Multi.Calc.Add(ctx, 40, 2)
	if err != nil {
		return fmt.Errorf("calc add: %w", err)
	}
	fmt.Printf("calc service: 40+2=%d\n", sum)

	stream, err := client.Multi.Clock.Tick(ctx)
	if err != nil {
		return fmt.Errorf("clock tick: %w", err)
	}
	defer stream.Close()
	for i := 0; i < ticks && stream.Receive(); i++ {
		fmt.Printf("clock service: tick %d\n", stream.Msg().Tick)
	}
	return stream.Err()
}
