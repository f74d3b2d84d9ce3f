package config

import (
	"flag"
	"io"
	"testing"
	"time"
)

func parse(args ...string) (Config, error) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return Parse(fs, args)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := parse("-token-secret", "x")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "0.0.0.0:80" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.TokenTTL != 120*time.Second {
		t.Errorf("ttl = %v", cfg.TokenTTL)
	}
	if cfg.PageSize != DefaultPageSize || cfg.DefinitionsURL != DefaultDefinitionsURL {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.IsMongo() {
		t.Error("default store is not SQLite")
	}
	if cfg.Url() != "http://localhost:80" {
		t.Errorf("url = %q", cfg.Url())
	}
}

func TestParseErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"-token-secret", "x", "-admin-user", "admin"},
		{"-token-secret", "x", "-page-size", "0"},
		{"-token-secret", "x", "-port", "nope"},
	}
	for _, args := range tests {
		if _, err := parse(args...); err == nil {
			t.Errorf("%v: no error", args)
		}
	}
}

func TestDefinitionURL(t *testing.T) {
	cfg, err := parse("-token-secret", "x", "-definitions-url", "https://example.org/prom/", "-db-url", "mongodb://localhost/prom")
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.DefinitionURL("EN", "BK1"); got != "https://example.org/prom/EN/BK1.html" {
		t.Errorf("url = %q", got)
	}
	if !cfg.IsMongo() {
		t.Error("mongodb:// URL not recognised")
	}
}
