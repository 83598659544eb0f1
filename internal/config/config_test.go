package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Mpesa.Environment != "sandbox" {
		t.Fatalf("Mpesa.Environment = %q, want sandbox", cfg.Mpesa.Environment)
	}
	if cfg.Mpesa.BusinessShortCode != "174379" {
		t.Fatalf("Mpesa.BusinessShortCode = %q, want 174379", cfg.Mpesa.BusinessShortCode)
	}
	if cfg.Mpesa.AccountReference != "Freelance Marketplace" {
		t.Fatalf("Mpesa.AccountReference = %q", cfg.Mpesa.AccountReference)
	}
	if cfg.Mpesa.Timeout != 30*time.Second {
		t.Fatalf("Mpesa.Timeout = %s, want 30s", cfg.Mpesa.Timeout)
	}
	if cfg.Mpesa.Retries != 1 {
		t.Fatalf("Mpesa.Retries = %d, want 1", cfg.Mpesa.Retries)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MPESA_ENV", "live")
	t.Setenv("MPESA_CONSUMER_KEY", "key")
	t.Setenv("MPESA_CONSUMER_SECRET", "secret")
	t.Setenv("MPESA_PASSKEY", "passkey")
	t.Setenv("MPESA_TIMEOUT", "5s")
	t.Setenv("MPESA_FIXED_AMOUNT", "1")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mpesa.Environment != "live" {
		t.Fatalf("Mpesa.Environment = %q, want live", cfg.Mpesa.Environment)
	}
	if cfg.Mpesa.ConsumerKey != "key" || cfg.Mpesa.ConsumerSecret != "secret" || cfg.Mpesa.Passkey != "passkey" {
		t.Fatalf("unexpected credentials: %+v", cfg.Mpesa)
	}
	if cfg.Mpesa.Timeout != 5*time.Second {
		t.Fatalf("Mpesa.Timeout = %s, want 5s", cfg.Mpesa.Timeout)
	}
	if cfg.Mpesa.FixedAmount != 1 {
		t.Fatalf("Mpesa.FixedAmount = %d, want 1", cfg.Mpesa.FixedAmount)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("Redis.DB = %d, want 3", cfg.Redis.DB)
	}
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	t.Setenv("MPESA_ENV", "staging")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown MPESA_ENV")
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}

	want := "host=db port=5432 user=u password=p dbname=n sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
}
