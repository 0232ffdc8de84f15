package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "softphone", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "softphone", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	// The defaults must survive into the derived values, not just the copy
	// Validate was reading.
	if !strings.HasSuffix(c.PostgresDSN(), "sslmode=disable") {
		t.Fatalf("DSN missing defaulted sslmode: %q", c.PostgresDSN())
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected defaulted access TTL, got %s", c.Auth.AccessTokenTTL)
	}
}

func TestValidate_RejectsNegativeSoftphoneTuning(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "softphone", SSLMode: "disable"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Softphone: SoftphoneConfig{
			LivenessTimeout: -time.Second,
		},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for negative liveness timeout")
	}
}

func TestLoad_SoftphoneDefaults(t *testing.T) {
	t.Setenv("WRAPUP_MANDATORY", "")
	c := Config{}
	c.Softphone.WrapUpMandatory = boolEnv("WRAPUP_MANDATORY", true)
	if !c.Softphone.WrapUpMandatory {
		t.Fatalf("wrap-up must default to mandatory")
	}

	t.Setenv("WRAPUP_MANDATORY", "false")
	if boolEnv("WRAPUP_MANDATORY", true) {
		t.Fatalf("explicit false must disable mandatory wrap-up")
	}
}
