// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/opentrusty/farmgate/internal/audit"
	"github.com/opentrusty/farmgate/internal/config"
	"github.com/opentrusty/farmgate/internal/grant"
	"github.com/opentrusty/farmgate/internal/observability/logger"
	"github.com/opentrusty/farmgate/internal/store/postgres"
)

// sweep deactivates expired tenant grants once and exits. Run it from cron
// when the server's in-process sweeper is disabled.
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: 1,
		MaxIdleConns: 0,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	grants := grant.NewService(
		postgres.NewGrantRepository(db),
		postgres.NewTenantRepository(db),
		postgres.NewPrincipalRepository(db),
		audit.NewSlogLogger(),
	)

	n, err := grants.SweepExpired(ctx, time.Now())
	if err != nil {
		slog.Error("sweep failed", logger.Error(err))
		os.Exit(1)
	}
	slog.Info("sweep finished", logger.Component("sweep"), logger.RowsAffected(n))
}
