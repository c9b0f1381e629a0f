package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadConfig_FirstReadableWins(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.json", "{not json")
	good := writeFile(t, dir, "good.json", `{
		"name": "dev",
		"providers": {"com.test.HelloService": {"address": "127.0.0.1:20880", "version": "1.0.0"}},
		"aliases": {"hello": "com.test.HelloService"}
	}`)

	cfg := LoadConfig(filepath.Join(dir, "missing.json"), bad, good)
	if cfg.Name != "dev" {
		t.Fatalf("expected name dev, got %q", cfg.Name)
	}
	if len(cfg.Providers) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(cfg.Providers))
	}
	if cfg.Aliases["hello"] != "com.test.HelloService" {
		t.Errorf("expected alias hello, got %v", cfg.Aliases)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	orig := DefaultPaths
	DefaultPaths = nil
	defer func() { DefaultPaths = orig }()

	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if cfg == nil || len(cfg.Providers) != 0 {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestResolve(t *testing.T) {
	r, err := Resolve(&Config{
		Name: "dev",
		Providers: map[string]StaticProvider{
			"com.test.HelloService": {Address: "10.0.0.5:20880", Version: "2.1.0"},
			"com.test.Other":        {Address: "localhost:20881"},
		},
		Aliases: map[string]string{"hello": "com.test.HelloService"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ep, ok := r.Get("com.test.HelloService")
	if !ok || ep.Host != "10.0.0.5" || ep.Port != 20880 {
		t.Errorf("unexpected endpoint %+v (ok=%v)", ep, ok)
	}
	ep, ok = r.Get("hello")
	if !ok || ep.Port != 20880 {
		t.Errorf("expected alias to resolve, got %+v (ok=%v)", ep, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing service to be absent")
	}
	if r.Version("hello") != "2.1.0" {
		t.Errorf("expected version via alias, got %q", r.Version("hello"))
	}
	if got := r.Services(); len(got) != 2 || got[0] != "com.test.HelloService" {
		t.Errorf("unexpected services %v", got)
	}
	if r.Len() != 2 || r.Name() != "dev" {
		t.Errorf("unexpected len %d or name %q", r.Len(), r.Name())
	}
}

func TestResolve_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"no port", &Config{Providers: map[string]StaticProvider{"a": {Address: "10.0.0.5"}}}},
		{"bad port", &Config{Providers: map[string]StaticProvider{"a": {Address: "10.0.0.5:70000"}}}},
		{"no host", &Config{Providers: map[string]StaticProvider{"a": {Address: ":20880"}}}},
		{"dangling alias", &Config{Aliases: map[string]string{"x": "missing"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resolve(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNilResolved(t *testing.T) {
	var r *Resolved
	if _, ok := r.Get("a"); ok {
		t.Error("expected nil Resolved to have no entries")
	}
	if r.Len() != 0 || r.Services() != nil || r.Name() != "" || r.Version("a") != "" {
		t.Error("expected zero values from nil Resolved")
	}
}
