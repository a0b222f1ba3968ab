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
	"log"

	"github.com/opentrusty/farmgate/internal/config"
	"github.com/opentrusty/farmgate/internal/store/postgres"
)

// clean-db drops and recreates the schema. Every tenant, principal and grant is lost.
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

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
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	fmt.Println("Cleaning database...")
	if err := db.Migrate(ctx, postgres.DropSchema); err != nil {
		log.Fatalf("Failed to drop schema: %v", err)
	}
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		log.Fatalf("Failed to recreate schema: %v", err)
	}

	fmt.Println("Database cleaned and reset successfully")
}
