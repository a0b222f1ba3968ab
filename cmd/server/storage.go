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

	"github.com/opentrusty/farmgate/internal/config"
	"github.com/opentrusty/farmgate/internal/grant"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/rbac"
	"github.com/opentrusty/farmgate/internal/store/memory"
	"github.com/opentrusty/farmgate/internal/store/postgres"
	"github.com/opentrusty/farmgate/internal/tenant"
)

type principalStore interface {
	identity.Repository
	identity.EdgeRepository
}

// repositories is one storage backend's view of every aggregate
type repositories struct {
	principals  principalStore
	roles       rbac.RoleRepository
	permissions rbac.PermissionRepository
	tenants     tenant.Repository
	grants      grant.Repository
	close       func()
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		s := memory.NewStore()
		return &repositories{
			principals:  s.Principals(),
			roles:       s.Roles(),
			permissions: s.Permissions(),
			tenants:     s.Tenants(),
			grants:      s.Grants(),
			close:       func() {},
		}, nil
	case config.DriverPostgres:
		db, err := postgres.New(ctx, postgresConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return &repositories{
			principals:  postgres.NewPrincipalRepository(db),
			roles:       postgres.NewRoleRepository(db),
			permissions: postgres.NewPermissionRepository(db),
			tenants:     postgres.NewTenantRepository(db),
			grants:      postgres.NewGrantRepository(db),
			close:       db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func postgresConfig(cfg *config.Config) postgres.Config {
	return postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
}
