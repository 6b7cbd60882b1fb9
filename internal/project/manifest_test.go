package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromParentDir(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `
[layout]
jobs = 3
dump_dir = "dumps"
debug = ["main", "hot_loop"]
`
	if err := os.WriteFile(filepath.Join(root, "arbor.toml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	m, ok, err := Load(sub)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("manifest not found from subdirectory")
	}
	if m.Root != root {
		t.Errorf("root = %q, want %q", m.Root, root)
	}
	if m.Config.Layout.Jobs != 3 {
		t.Errorf("jobs = %d, want 3", m.Config.Layout.Jobs)
	}
	if m.Config.Layout.DumpDir != "dumps" {
		t.Errorf("dump_dir = %q", m.Config.Layout.DumpDir)
	}
	if len(m.Config.Layout.Debug) != 2 || m.Config.Layout.Debug[1] != "hot_loop" {
		t.Errorf("debug = %v", m.Config.Layout.Debug)
	}
}

func TestLoadMissingIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	_, ok, err := Load(dir)
	if err != nil {
		t.Fatalf("missing manifest should not error: %v", err)
	}
	if ok {
		t.Fatalf("unexpected manifest found under %s", dir)
	}
}

func TestLoadRejectsBadToml(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "arbor.toml"), []byte("[layout\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, ok, err := Load(dir)
	if !ok || err == nil {
		t.Fatalf("malformed manifest must error, got ok=%v err=%v", ok, err)
	}
}
