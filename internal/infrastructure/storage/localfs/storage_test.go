package localfs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveJSONWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	path, err := store.SaveJSON(context.Background(), "run.json", map[string]any{"reason": "a < b", "count": 2})
	if err != nil {
		t.Fatalf("SaveJSON() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if !strings.Contains(string(raw), "a < b") {
		t.Fatalf("expected unescaped html characters, got %s", raw)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the result file, got %d entries", len(entries))
	}
}

func TestSaveRejectsEscapingKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"", "../x.json", "/tmp/x.json"} {
		if _, err := store.Save(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}
