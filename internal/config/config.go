package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
		// Habilita el campo "stack" en respuestas de error (solo dev).
		Debug    bool   `yaml:"debug"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	// Plano de control: de dónde bajar sus claves públicas y qué validar
	// en los tokens que nos manda.
	ControlPlane struct {
		// IssuerDomain es el dominio del plano de control (sin esquema).
		IssuerDomain string `yaml:"issuer_domain"`
		// JWKSPath es el well-known path del key-set remoto.
		JWKSPath string `yaml:"jwks_path"`
		// Audience esperado en los tokens entrantes.
		Audience string `yaml:"audience"`
		// CacheTTL del key-set remoto (default 300s).
		CacheTTL time.Duration `yaml:"cache_ttl"`
		// FetchTimeout del GET al endpoint remoto.
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
	} `yaml:"control_plane"`

	Keys struct {
		// Custody: "split" (privada solo por secreto out-of-band, default)
		// o "colocated" (privada cifrada junto a la pública en el store).
		Custody string `yaml:"custody"`
		// RecordName: nombre fijo del registro en el KV durable.
		RecordName string `yaml:"record_name"`
		// DecisionTTL: ventana de validez de la respuesta firmada.
		DecisionTTL time.Duration `yaml:"decision_ttl"`
	} `yaml:"keys"`

	Storage struct {
		// Driver: "pg" | "fs"
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
		FSRoot string `yaml:"fs_root"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // "memory" | "redis"
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL time.Duration `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Decide  struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"decide"`
		Keys struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"keys"`
	} `yaml:"rate"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	c.applyEnvOverrides()
	return &c, nil
}

// FromEnv arma la config SOLO desde variables de entorno (sin YAML).
func FromEnv() *Config {
	var c Config
	c.applyDefaults()
	c.applyEnvOverrides()
	return &c
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.ControlPlane.JWKSPath == "" {
		c.ControlPlane.JWKSPath = "/.well-known/jwks.json"
	}
	if c.ControlPlane.CacheTTL == 0 {
		c.ControlPlane.CacheTTL = 300 * time.Second
	}
	if c.ControlPlane.FetchTimeout == 0 {
		c.ControlPlane.FetchTimeout = 5 * time.Second
	}
	if c.Keys.Custody == "" {
		c.Keys.Custody = "split"
	}
	if c.Keys.RecordName == "" {
		c.Keys.RecordName = "signing-key"
	}
	if c.Keys.DecisionTTL == 0 {
		c.Keys.DecisionTTL = 300 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "fs"
	}
	if c.Storage.FSRoot == "" {
		c.Storage.FSRoot = "data"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == 0 {
		c.Cache.Memory.DefaultTTL = 2 * time.Minute
	}
	if c.Rate.Decide.Limit == 0 {
		c.Rate.Decide.Limit = 120
	}
	if c.Rate.Decide.Window == 0 {
		c.Rate.Decide.Window = time.Minute
	}
	if c.Rate.Keys.Limit == 0 {
		c.Rate.Keys.Limit = 30
	}
	if c.Rate.Keys.Window == 0 {
		c.Rate.Keys.Window = time.Minute
	}
}

// applyEnvOverrides pisa valores puntuales con env vars.
// Convención: POLICYGATE_<SECCION>_<CAMPO>.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("POLICYGATE_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("POLICYGATE_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvBool("POLICYGATE_DEBUG"); ok {
		c.App.Debug = v
	}
	if v, ok := getEnvStr("POLICYGATE_LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}
	if v, ok := getEnvStr("POLICYGATE_ISSUER_DOMAIN"); ok {
		c.ControlPlane.IssuerDomain = v
	}
	if v, ok := getEnvStr("POLICYGATE_JWKS_PATH"); ok {
		c.ControlPlane.JWKSPath = v
	}
	if v, ok := getEnvStr("POLICYGATE_AUDIENCE"); ok {
		c.ControlPlane.Audience = v
	}
	if v, ok := getEnvDur("POLICYGATE_JWKS_CACHE_TTL"); ok {
		c.ControlPlane.CacheTTL = v
	}
	if v, ok := getEnvStr("POLICYGATE_KEY_CUSTODY"); ok {
		c.Keys.Custody = v
	}
	if v, ok := getEnvDur("POLICYGATE_DECISION_TTL"); ok {
		c.Keys.DecisionTTL = v
	}
	if v, ok := getEnvStr("POLICYGATE_STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("POLICYGATE_STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("POLICYGATE_STORAGE_FS_ROOT"); ok {
		c.Storage.FSRoot = v
	}
	if v, ok := getEnvStr("POLICYGATE_CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("POLICYGATE_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("POLICYGATE_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvBool("POLICYGATE_RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
}

// Validate falla si falta configuración sin la cual el protocolo no puede
// ser fail-closed (audience/issuer ambiguos => deny no verificable).
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ControlPlane.IssuerDomain) == "" {
		return fmt.Errorf("config: control_plane.issuer_domain requerido")
	}
	if strings.TrimSpace(c.ControlPlane.Audience) == "" {
		return fmt.Errorf("config: control_plane.audience requerido")
	}
	switch c.Keys.Custody {
	case "split", "colocated":
	default:
		return fmt.Errorf("config: keys.custody debe ser split|colocated, got %q", c.Keys.Custody)
	}
	switch c.Storage.Driver {
	case "pg":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("config: storage.dsn requerido con driver pg")
		}
	case "fs":
	default:
		return fmt.Errorf("config: storage.driver debe ser pg|fs, got %q", c.Storage.Driver)
	}
	return nil
}

// JWKSEndpoint arma la URL completa del key-set remoto.
func (c *Config) JWKSEndpoint() string {
	domain := strings.TrimSuffix(strings.TrimSpace(c.ControlPlane.IssuerDomain), "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain + c.ControlPlane.JWKSPath
	}
	return "https://" + domain + c.ControlPlane.JWKSPath
}

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	v, ok := getEnvStr(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getEnvBool(key string) (bool, bool) {
	v, ok := getEnvStr(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func getEnvDur(key string) (time.Duration, bool) {
	v, ok := getEnvStr(key)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
