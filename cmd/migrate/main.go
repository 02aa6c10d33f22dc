package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/dropDatabas3/policygate/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "ruta al YAML de configuración (opcional; sin él, solo env)")
		dir        = flag.String("dir", "migrations/postgres", "directorio de migraciones (*_up.sql / *_down.sql)")
	)
	flag.Parse()

	_ = godotenv.Load()

	// Args posicionales: [action] [steps]
	action := "up"
	steps := 0
	args := flag.Args()
	if len(args) >= 1 && args[0] != "" {
		action = strings.ToLower(args[0])
	}
	if len(args) >= 2 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			steps = n
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("config load: %v", err)
		}
	} else {
		cfg = config.FromEnv()
	}
	if strings.TrimSpace(cfg.Storage.DSN) == "" {
		log.Fatal("storage.dsn requerido (POLICYGATE_STORAGE_DSN)")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("pgxpool: %v", err)
	}
	defer pool.Close()

	switch action {
	case "up":
		upFiles, err := listSQL(*dir, "_up.sql")
		if err != nil {
			log.Fatalf("list up: %v", err)
		}
		if len(upFiles) == 0 {
			log.Println("sin migraciones *_up.sql; nada que hacer")
			return
		}
		sort.Strings(upFiles)
		if steps > 0 && steps < len(upFiles) {
			upFiles = upFiles[:steps]
		}
		log.Printf("aplicando %d migración(es) up...", len(upFiles))
		for _, f := range upFiles {
			if err := execSQLFile(ctx, pool, f); err != nil {
				log.Fatalf("exec %s: %v", f, err)
			}
		}
		log.Println("migraciones up completas")

	case "down":
		downFiles, err := listSQL(*dir, "_down.sql")
		if err != nil {
			log.Fatalf("list down: %v", err)
		}
		if len(downFiles) == 0 {
			log.Println("sin migraciones *_down.sql; nada que hacer")
			return
		}
		sort.Strings(downFiles)
		reverseInPlace(downFiles)
		if steps > 0 && steps < len(downFiles) {
			downFiles = downFiles[:steps]
		}
		log.Printf("aplicando %d migración(es) down...", len(downFiles))
		for _, f := range downFiles {
			if err := execSQLFile(ctx, pool, f); err != nil {
				log.Fatalf("exec %s: %v", f, err)
			}
		}
		log.Println("migraciones down completas")

	default:
		log.Fatalf("acción desconocida %q. Uso: up | down [steps]", action)
	}
}

func listSQL(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			name := e.Name()
			if strings.HasSuffix(strings.ToLower(name), strings.ToLower(suffix)) {
				out = append(out, filepath.Join(dir, name))
			}
		}
	}
	return out, nil
}

func reverseInPlace(ss []string) {
	for i, j := 0, len(ss)-1; i < j; i, j = i+1, j-1 {
		ss[i], ss[j] = ss[j], ss[i]
	}
}

func execSQLFile(ctx context.Context, pool *pgxpool.Pool, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	start := time.Now()
	if _, err := pool.Exec(ctx, string(b)); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	log.Printf("OK %s (%s)", filepath.Base(path), time.Since(start).Truncate(time.Millisecond))
	return nil
}
