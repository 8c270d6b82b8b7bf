package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		DefaultSession: "work",
		MediaDir:       "/srv/wabox/media",
		Broadcast: Broadcast{
			DefaultJIDs: []string{"111@s.whatsapp.net"},
			Groups: []GroupSeed{
				{Name: "Family", JIDs: []string{"222@s.whatsapp.net"}},
				{Name: "Friends"},
			},
		},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.MediaDir != "/srv/wabox/media" {
		t.Errorf("MediaDir = %q, want /srv/wabox/media", loaded.MediaDir)
	}
	if len(loaded.Broadcast.Groups) != 2 || loaded.Broadcast.Groups[0].Name != "Family" {
		t.Errorf("Broadcast.Groups = %+v, want Family first", loaded.Broadcast.Groups)
	}
	if len(loaded.Broadcast.DefaultJIDs) != 1 || loaded.Broadcast.DefaultJIDs[0] != "111@s.whatsapp.net" {
		t.Errorf("DefaultJIDs = %v", loaded.Broadcast.DefaultJIDs)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
