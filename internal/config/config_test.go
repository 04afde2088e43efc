package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "MIN_CONTRIBUTION")
	unsetEnvWithCleanup(t, "KV_BACKEND")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "SERVER_PORT")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MinContribution != 10 {
		t.Fatalf("expected default minimum contribution 10, got %d", cfg.MinContribution)
	}
	if cfg.KVBackend != "memory" {
		t.Fatalf("expected memory kv backend, got %q", cfg.KVBackend)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.EventExchange != "fundlink.events" {
		t.Fatalf("expected default exchange, got %q", cfg.EventExchange)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "9100")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9100" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_NonPositiveMinimumFallsBackToDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "MIN_CONTRIBUTION", "-5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MinContribution != 10 {
		t.Fatalf("expected minimum contribution to reset to 10, got %d", cfg.MinContribution)
	}
}

func TestLoadConfig_UnknownKVBackendUsesMemory(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "KV_BACKEND", " Cassandra ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.KVBackend != "memory" {
		t.Fatalf("expected memory fallback, got %q", cfg.KVBackend)
	}
}

func TestLoadConfig_JWTSecretAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "JWT_SECRET")
	setEnvWithCleanup(t, "AUTH_JWT_SECRET", "alias-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWTSecret != "alias-secret" {
		t.Fatalf("expected JWT secret from alias, got %q", cfg.JWTSecret)
	}
}

func TestLoadConfig_WaitCeiling(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "MESSAGE_WAIT_MAX_SECONDS", "600")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MessageWaitMaxSeconds != 55 {
		t.Fatalf("expected wait ceiling of 55 seconds, got %d", cfg.MessageWaitMaxSeconds)
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://a.example , ,https://b.example"}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", got)
	}
	if got := (Config{}).AllowedOrigins(); len(got) != 1 || got[0] != "*" {
		t.Fatalf("expected wildcard default, got %v", got)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func TestKVKeyPrefixMatchesRedisLayout(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setEnvWithCleanup(t, "REDIS_KEY_PREFIX", "fundlink:")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got := cfg.KVKeyPrefix(); got != "fundlink:kv:" {
		t.Fatalf("expected fundlink:kv:, got %q", got)
	}
}

func TestSharedKV(t *testing.T) {
	tests := []struct {
		backend string
		want    bool
	}{
		{backend: "memory", want: false},
		{backend: "redis", want: true},
		{backend: "mongo", want: true},
	}
	for _, tt := range tests {
		if got := (Config{KVBackend: tt.backend}).SharedKV(); got != tt.want {
			t.Fatalf("SharedKV(%q) = %v, want %v", tt.backend, got, tt.want)
		}
	}
}
