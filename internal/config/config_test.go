package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"PORT":                 "",
		"REDIS_URL":            "",
		"PRICING_TAX_RATE_BPS": "",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Port)
	}
	if cfg.TaxRateBps != 1000 {
		t.Fatalf("tax bps = %d, want 1000", cfg.TaxRateBps)
	}
	if !cfg.EmbeddedRedis() {
		t.Fatal("expected embedded redis when REDIS_URL is empty")
	}
	if cfg.SessionTTL != 12*time.Hour {
		t.Fatalf("session ttl = %s, want 12h", cfg.SessionTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"PORT":                 "9090",
		"REDIS_URL":            "redis://localhost:6379/1",
		"PRICING_TAX_RATE_BPS": "2500",
		"WEBHOOK_URLS":         "https://a.example.com/hook, https://b.example.com/hook",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EmbeddedRedis() {
		t.Fatal("expected external redis")
	}
	if cfg.TaxRateBps != 2500 {
		t.Fatalf("tax bps = %d, want 2500", cfg.TaxRateBps)
	}
	if got := cfg.HTTPAddr(); got != ":9090" {
		t.Fatalf("addr = %q, want :9090", got)
	}
	if len(cfg.WebhookURLs) != 2 || cfg.WebhookURLs[1] != "https://b.example.com/hook" {
		t.Fatalf("webhook urls = %v", cfg.WebhookURLs)
	}
}

func TestMustLoadReturnsConfig(t *testing.T) {
	t.Setenv("PRICING_TAX_RATE_BPS", "1500")
	cfg := MustLoad()
	if cfg.TaxRateBps != 1500 {
		t.Fatalf("tax bps = %d, want 1500", cfg.TaxRateBps)
	}
}

func TestMustLoadPanicsOnInvalidEnv(t *testing.T) {
	t.Setenv("PRICING_TAX_RATE_BPS", "-1")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for invalid configuration")
		}
	}()
	MustLoad()
}

func TestLoadRejectsNegativeTax(t *testing.T) {
	if _, err := LoadForTests(map[string]string{"PRICING_TAX_RATE_BPS": "-1"}); err == nil {
		t.Fatal("expected error for negative tax rate")
	}
}
