package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/policygate/internal/config"
	"github.com/dropDatabas3/policygate/internal/keys"
	"github.com/dropDatabas3/policygate/internal/observability/logger"
	"github.com/dropDatabas3/policygate/internal/security/secretbox"
	"github.com/dropDatabas3/policygate/internal/store/core"
	fsdriver "github.com/dropDatabas3/policygate/internal/store/fs"
	pgdriver "github.com/dropDatabas3/policygate/internal/store/pg"
)

// Herramienta operativa de claves: pre-genera el par de firma fuera del
// arranque (así el primer deploy no depende de la carrera del arranque),
// muestra el registro vigente y genera claves maestras de secretbox.
func main() {
	var (
		flagEnvFile     = flag.String("env-file", ".env", "ruta a .env")
		flagConfigPath  = flag.String("config", "", "ruta a config.yaml (opcional; sin él, solo env)")
		cmdGenerate     = flag.Bool("generate", false, "genera el par de firma si no existe (conditional put)")
		cmdShow         = flag.Bool("show", false, "muestra kid y JWK público del registro vigente")
		cmdGenSecretbox = flag.Bool("gen-secretbox", false, "genera nueva clave para SECRETBOX_MASTER_KEY")
	)
	flag.Parse()

	if *flagEnvFile != "" {
		_ = godotenv.Load(*flagEnvFile)
	}

	if *cmdGenSecretbox {
		key, err := secretbox.GenerateMasterKey()
		if err != nil {
			log.Fatalf("gen-secretbox: %v", err)
		}
		fmt.Printf("SECRETBOX_MASTER_KEY=%s\n", key)
		return
	}

	var (
		cfg *config.Config
		err error
	)
	if *flagConfigPath != "" {
		cfg, err = config.Load(*flagConfigPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	} else {
		cfg = config.FromEnv()
	}

	ctx := context.Background()
	var store core.KeyRecordStore
	switch cfg.Storage.Driver {
	case "pg":
		pgStore, err := pgdriver.New(ctx, cfg.Storage.DSN, cfg.Keys.RecordName)
		if err != nil {
			log.Fatalf("store: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
	case "fs":
		store = fsdriver.NewKeyStore(cfg.Storage.FSRoot, cfg.Keys.RecordName)
	default:
		log.Fatalf("storage.driver debe ser pg|fs, got %q", cfg.Storage.Driver)
	}

	switch {
	case *cmdGenerate:
		logger.Init(logger.Config{Env: "dev", Level: "info"})
		mgr := keys.NewManager(store, keys.Custody(cfg.Keys.Custody), keys.EnvSecretSource{})
		rec, err := mgr.EnsureKeyPair(ctx)
		if err != nil {
			log.Fatalf("generate: %v", err)
		}
		fmt.Printf("kid: %s\nalg: %s\npublic_jwk: %s\n", rec.KID, rec.Alg, rec.PublicJWK)
		if keys.Custody(cfg.Keys.Custody) == keys.CustodySplit {
			fmt.Println("(custody split: el JWK privado salió por el log de arriba; guardarlo en SIGNING_PRIVATE_JWK)")
		}
	case *cmdShow:
		rec, err := store.Get(ctx)
		if err != nil {
			log.Fatalf("show: %v", err)
		}
		fmt.Printf("kid: %s\nalg: %s\ncreated_at: %s\npublic_jwk: %s\n",
			rec.KID, rec.Alg, rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), rec.PublicJWK)
		if rec.EncPrivateJWK != "" {
			fmt.Println("enc_private_jwk: (presente, cifrado)")
		}
	default:
		flag.Usage()
	}
}
