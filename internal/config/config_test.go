package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_AppEnvValidation(t *testing.T) {
	t.Setenv("APP_ENV", "invalid")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_ENV")
	}
}

func TestLoad_UptraceRequiresDSNWhenEnabled(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when UPTRACE_ENABLED=true without UPTRACE_DSN")
	}
}

func TestLoad_DefaultsByEnv(t *testing.T) {
	t.Run("prod disables swagger by default", func(t *testing.T) {
		t.Setenv("APP_ENV", EnvProd)
		t.Setenv("UPTRACE_ENABLED", "false")
		t.Setenv("SWAGGER_ENABLED", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.SwaggerEnabled {
			t.Fatalf("expected SwaggerEnabled=false in prod by default")
		}
	})

	t.Run("dev enables swagger by default", func(t *testing.T) {
		t.Setenv("APP_ENV", EnvDev)
		t.Setenv("UPTRACE_ENABLED", "false")
		t.Setenv("SWAGGER_ENABLED", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if !cfg.SwaggerEnabled {
			t.Fatalf("expected SwaggerEnabled=true in dev by default")
		}
	})
}

func TestLoad_PprofDefaultsAddrWhenEnabled(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "false")
	t.Setenv("PPROF_ENABLED", "true")
	t.Setenv("PPROF_ADDR", "  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PprofAddr != ":6060" {
		t.Fatalf("expected default pprof addr :6060, got %q", cfg.PprofAddr)
	}
}

func TestLoad_PyroscopeRequiresServerAddressWhenEnabled(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "false")
	t.Setenv("PYROSCOPE_ENABLED", "true")
	t.Setenv("PYROSCOPE_SERVER_ADDRESS", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when PYROSCOPE_ENABLED=true without PYROSCOPE_SERVER_ADDRESS")
	}
}

func TestLoad_PyroscopeAppNameDefaultsToServiceName(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "false")
	t.Setenv("APP_SERVICE_NAME", "porras-fc-api-test")
	t.Setenv("PYROSCOPE_ENABLED", "true")
	t.Setenv("PYROSCOPE_SERVER_ADDRESS", "http://localhost:4040")
	t.Setenv("PYROSCOPE_APP_NAME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PyroscopeAppName != "porras-fc-api-test" {
		t.Fatalf("unexpected pyroscope app name: %q", cfg.PyroscopeAppName)
	}
}

func TestLoad_CORSOriginsDefaultAndParsing(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "false")

	t.Run("default wildcard", func(t *testing.T) {
		t.Setenv("CORS_ALLOWED_ORIGINS", "")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
			t.Fatalf("unexpected default CORS origins: %+v", cfg.CORSAllowedOrigins)
		}
	})

	t.Run("comma separated parsing", func(t *testing.T) {
		t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, http://localhost:5173 ")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if len(cfg.CORSAllowedOrigins) != 2 {
			t.Fatalf("unexpected CORS origins length: %d", len(cfg.CORSAllowedOrigins))
		}
		if cfg.CORSAllowedOrigins[0] != "https://a.example.com" {
			t.Fatalf("unexpected first CORS origin: %s", cfg.CORSAllowedOrigins[0])
		}
		if cfg.CORSAllowedOrigins[1] != "http://localhost:5173" {
			t.Fatalf("unexpected second CORS origin: %s", cfg.CORSAllowedOrigins[1])
		}
	})
}

func TestLoad_DBDisablePreparedBinaryResultParsing(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "false")

	t.Run("default true", func(t *testing.T) {
		t.Setenv("DB_DISABLE_PREPARED_BINARY_RESULT", "")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if !cfg.DBDisablePreparedBinary {
			t.Fatalf("expected DBDisablePreparedBinary=true by default")
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("DB_DISABLE_PREPARED_BINARY_RESULT", "not-bool")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for invalid DB_DISABLE_PREPARED_BINARY_RESULT")
		}
	})
}

func TestLoad_CacheConfigParsing(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "false")

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("CACHE_ENABLED", "")
		t.Setenv("CACHE_TTL", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if !cfg.CacheEnabled {
			t.Fatalf("expected cache enabled by default")
		}
		if cfg.CacheTTL != 60*time.Second {
			t.Fatalf("unexpected default cache ttl: %s", cfg.CacheTTL)
		}
	})

	t.Run("invalid ttl", func(t *testing.T) {
		t.Setenv("CACHE_TTL", "bad")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for invalid CACHE_TTL")
		}
	})
}

func TestLoad_StoreDriverValidation(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "false")

	t.Run("defaults to postgres", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.StoreDriver != StoreDriverPostgres {
			t.Fatalf("unexpected store driver: %q", cfg.StoreDriver)
		}
	})

	t.Run("memory is case insensitive", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", " Memory ")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.StoreDriver != StoreDriverMemory {
			t.Fatalf("unexpected store driver: %q", cfg.StoreDriver)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "mysql")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for unknown STORE_DRIVER")
		}
	})
}

func TestLoad_AuthModeValidation(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "false")

	t.Run("introspect by default", func(t *testing.T) {
		t.Setenv("AUTH_MODE", "")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.AuthMode != AuthModeIntrospect {
			t.Fatalf("unexpected auth mode: %q", cfg.AuthMode)
		}
		breaker := cfg.AnubisCircuitBreaker()
		if !breaker.Enabled || breaker.FailureThreshold != 5 || breaker.HalfOpenMaxReq != 2 {
			t.Fatalf("unexpected circuit breaker defaults: %+v", breaker)
		}
	})

	t.Run("jwt requires secret", func(t *testing.T) {
		t.Setenv("AUTH_MODE", "jwt")
		t.Setenv("AUTH_JWT_SECRET", "")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error when AUTH_MODE=jwt without AUTH_JWT_SECRET")
		}
	})

	t.Run("jwt with secret", func(t *testing.T) {
		t.Setenv("AUTH_MODE", "jwt")
		t.Setenv("AUTH_JWT_SECRET", "s3cret")
		t.Setenv("AUTH_JWT_ISSUER", "porras-fc")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.AuthJWTSecret != "s3cret" || cfg.AuthJWTIssuer != "porras-fc" {
			t.Fatalf("unexpected jwt config: %+v", cfg)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		t.Setenv("AUTH_MODE", "basic")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for unknown AUTH_MODE")
		}
	})
}

func TestLoad_LeagueWorkflowConfig(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "false")

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("LEAGUE_OP_TIMEOUT", "")
		t.Setenv("DASHBOARD_LOAD_TIMEOUT", "")
		t.Setenv("INVITE_CODE_MAX_ATTEMPTS", "")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.LeagueOpTimeout != 10*time.Second {
			t.Fatalf("unexpected league op timeout: %s", cfg.LeagueOpTimeout)
		}
		if cfg.DashboardLoadTimeout != 10*time.Second {
			t.Fatalf("unexpected dashboard load timeout: %s", cfg.DashboardLoadTimeout)
		}
		if cfg.InviteCodeMaxAttempts != 3 {
			t.Fatalf("unexpected invite code attempts: %d", cfg.InviteCodeMaxAttempts)
		}
	})

	t.Run("zero attempts", func(t *testing.T) {
		t.Setenv("INVITE_CODE_MAX_ATTEMPTS", "0")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for INVITE_CODE_MAX_ATTEMPTS=0")
		}
	})

	t.Run("negative timeout", func(t *testing.T) {
		t.Setenv("LEAGUE_OP_TIMEOUT", "-1s")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for negative LEAGUE_OP_TIMEOUT")
		}
	})

	t.Run("zero dashboard load timeout", func(t *testing.T) {
		t.Setenv("DASHBOARD_LOAD_TIMEOUT", "0s")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for DASHBOARD_LOAD_TIMEOUT=0s")
		}
	})
}

func TestLoad_RealtimeConfig(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "false")

	t.Run("nats disabled by default", func(t *testing.T) {
		t.Setenv("NATS_ENABLED", "")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.NATSEnabled {
			t.Fatalf("expected NATSEnabled=false by default")
		}
		if cfg.NATSSubject != "porras.session.events" {
			t.Fatalf("unexpected nats subject: %q", cfg.NATSSubject)
		}
		if cfg.EventWorkers != 16 {
			t.Fatalf("unexpected event workers: %d", cfg.EventWorkers)
		}
	})

	t.Run("invalid nats flag", func(t *testing.T) {
		t.Setenv("NATS_ENABLED", "maybe")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for invalid NATS_ENABLED")
		}
	})

	t.Run("read timeout must exceed ping interval", func(t *testing.T) {
		t.Setenv("WS_PING_INTERVAL", "30s")
		t.Setenv("WS_READ_TIMEOUT", "20s")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error when WS_READ_TIMEOUT <= WS_PING_INTERVAL")
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		if err := os.WriteFile(path, []byte("PORRAS_DOTENV_PROBE=from-file\n"), 0o600); err != nil {
			t.Fatalf("write env file: %v", err)
		}
		t.Setenv("APP_ENV_FILE", path)
		t.Setenv("PORRAS_DOTENV_PROBE", "")
		os.Unsetenv("PORRAS_DOTENV_PROBE")

		if err := LoadDotEnv(); err != nil {
			t.Fatalf("load dotenv: %v", err)
		}
		if got := os.Getenv("PORRAS_DOTENV_PROBE"); got != "from-file" {
			t.Fatalf("unexpected probe value: %q", got)
		}
	})

	t.Run("does not override environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		if err := os.WriteFile(path, []byte("PORRAS_DOTENV_PROBE=from-file\n"), 0o600); err != nil {
			t.Fatalf("write env file: %v", err)
		}
		t.Setenv("APP_ENV_FILE", path)
		t.Setenv("PORRAS_DOTENV_PROBE", "from-env")

		if err := LoadDotEnv(); err != nil {
			t.Fatalf("load dotenv: %v", err)
		}
		if got := os.Getenv("PORRAS_DOTENV_PROBE"); got != "from-env" {
			t.Fatalf("unexpected probe value: %q", got)
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		t.Setenv("APP_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
		if err := LoadDotEnv(); err == nil {
			t.Fatalf("expected error for missing APP_ENV_FILE")
		}
	})
}
