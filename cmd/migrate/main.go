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
	"os"

	"github.com/opentrusty/farmgate/internal/config"
	"github.com/opentrusty/farmgate/internal/store/postgres"
)

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

	fmt.Println("Connected to database")

	scripts := []struct {
		name string
		sql  string
	}{
		{"001_initial_schema.up.sql", postgres.InitialSchema},
	}
	if len(os.Args) > 1 && os.Args[1] == "down" {
		scripts = []struct {
			name string
			sql  string
		}{
			{"001_initial_schema.down.sql", postgres.DropSchema},
		}
	}

	for _, s := range scripts {
		fmt.Printf("Running %s...\n", s.name)
		if err := db.Migrate(ctx, s.sql); err != nil {
			log.Fatalf("Failed to execute %s: %v", s.name, err)
		}
		fmt.Printf("%s completed\n", s.name)
	}

	fmt.Println("All migrations completed successfully")
}
