package casconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"xdao.co/canonproof/storage"
	"xdao.co/canonproof/storage/casregistry"
	_ "xdao.co/canonproof/storage/localfs"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestLoadFileYAMLAndJSON(t *testing.T) {
	y := writeFile(t, "cas.yaml", `
write_policy: all
backends:
  - name: memory
    id: hot
  - name: localfs
    config:
      dir: /tmp/x
`)
	cfg, err := LoadFile(y)
	if err != nil {
		t.Fatalf("LoadFile(yaml): %v", err)
	}
	if cfg.WritePolicy != "all" || len(cfg.Backends) != 2 || cfg.Backends[0].ID != "hot" || cfg.Backends[1].Config["dir"] != "/tmp/x" {
		t.Fatalf("unexpected yaml config: %+v", cfg)
	}

	j := writeFile(t, "cas.json", `{"backends":[{"name":"memory"}]}`)
	cfg, err = LoadFile(j)
	if err != nil {
		t.Fatalf("LoadFile(json): %v", err)
	}
	if len(cfg.Backends) != 1 || cfg.Backends[0].Name != "memory" {
		t.Fatalf("unexpected json config: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty", Config{}},
		{"no name", Config{Backends: []BackendConfig{{}}}},
		{"duplicate id", Config{Backends: []BackendConfig{{Name: "memory"}, {Name: "localfs", ID: "memory"}}}},
		{"bad policy", Config{WritePolicy: "some", Backends: []BackendConfig{{Name: "memory"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestOpenWritePolicies(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backends := []BackendConfig{
		{Name: "memory"},
		{Name: "localfs", ID: "disk", Config: map[string]string{"dir": dir}},
	}

	cas, closeFn, err := Config{Backends: backends}.Open(casregistry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open(first): %v", err)
	}
	defer closeFn()
	if _, ok := cas.(storage.MultiCAS); !ok {
		t.Fatalf("write_policy first: got %T want storage.MultiCAS", cas)
	}

	cas, closeFn2, err := Config{WritePolicy: "all", Backends: backends}.Open(casregistry.UsageCLI, "disk")
	if err != nil {
		t.Fatalf("Open(all): %v", err)
	}
	defer closeFn2()
	rep, ok := cas.(storage.ReplicatingCAS)
	if !ok {
		t.Fatalf("write_policy all: got %T want storage.ReplicatingCAS", cas)
	}
	if rep.Backends[0].Name != "disk" {
		t.Fatalf("preferred backend not first: %q", rep.Backends[0].Name)
	}
	id, perBackend, err := rep.PutAll(ctx, []byte("replicated"))
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	for _, name := range []string{"disk", "memory"} {
		if got, ok := perBackend[name]; !ok || !got.Equals(id) {
			t.Fatalf("backend %q cid = %v, want %s", name, got, id)
		}
	}

	if _, _, err := (Config{Backends: backends}).Open(casregistry.UsageCLI, "missing"); err == nil {
		t.Fatalf("expected error for unknown preferred backend")
	}
}
