package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	c := FromEnv()

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "/.well-known/jwks.json", c.ControlPlane.JWKSPath)
	assert.Equal(t, 300*time.Second, c.ControlPlane.CacheTTL)
	assert.Equal(t, "split", c.Keys.Custody)
	assert.Equal(t, "signing-key", c.Keys.RecordName)
	assert.Equal(t, 300*time.Second, c.Keys.DecisionTTL)
	assert.Equal(t, "fs", c.Storage.Driver)
	assert.Equal(t, "memory", c.Cache.Kind)
}

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
control_plane:
  issuer_domain: cp.example.com
  audience: policygate
  cache_ttl: 120s
keys:
  custody: colocated
storage:
  driver: pg
  dsn: postgres://localhost/pg
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	os.Setenv("POLICYGATE_AUDIENCE", "gateway-prod")
	t.Cleanup(func() { os.Unsetenv("POLICYGATE_AUDIENCE") })

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cp.example.com", c.ControlPlane.IssuerDomain)
	// El env pisa al YAML.
	assert.Equal(t, "gateway-prod", c.ControlPlane.Audience)
	assert.Equal(t, 120*time.Second, c.ControlPlane.CacheTTL)
	assert.Equal(t, "colocated", c.Keys.Custody)
	require.NoError(t, c.Validate())
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sin issuer_domain", func(c *Config) { c.ControlPlane.IssuerDomain = "" }},
		{"sin audience", func(c *Config) { c.ControlPlane.Audience = "" }},
		{"custody inválida", func(c *Config) { c.Keys.Custody = "vault" }},
		{"pg sin dsn", func(c *Config) { c.Storage.Driver = "pg"; c.Storage.DSN = "" }},
		{"driver inválido", func(c *Config) { c.Storage.Driver = "mysql" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := FromEnv()
			c.ControlPlane.IssuerDomain = "cp.example.com"
			c.ControlPlane.Audience = "policygate"
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestJWKSEndpoint(t *testing.T) {
	c := FromEnv()
	c.ControlPlane.IssuerDomain = "cp.example.com"
	assert.Equal(t, "https://cp.example.com/.well-known/jwks.json", c.JWKSEndpoint())

	// Con esquema explícito se respeta (útil en dev contra httptest).
	c.ControlPlane.IssuerDomain = "http://localhost:9999"
	assert.Equal(t, "http://localhost:9999/.well-known/jwks.json", c.JWKSEndpoint())

	c.ControlPlane.IssuerDomain = "cp.example.com/"
	assert.Equal(t, "https://cp.example.com/.well-known/jwks.json", c.JWKSEndpoint())
}
