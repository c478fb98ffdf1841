package statefile

import (
	"os"
	"path/filepath"
	"testing"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	if err := Write(path, doc{Name: "a", Count: 7}); err != nil {
		t.Fatal(err)
	}

	var got doc
	if err := Read(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "a" || got.Count != 7 {
		t.Errorf("got %+v", got)
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := Write(path, doc{Name: "a"}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		t.Errorf("dir contents = %v, want only state.json", entries)
	}
}

func TestWriteReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	if err := Write(path, doc{Count: 1}); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, doc{Count: 2}); err != nil {
		t.Fatal(err)
	}

	var got doc
	if err := Read(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 2 {
		t.Errorf("count = %d, want 2", got.Count)
	}
}

func TestReadMissingFile(t *testing.T) {
	var got doc
	if err := Read(filepath.Join(t.TempDir(), "nope.json"), &got); err == nil {
		t.Fatal("expected error for missing file")
	}
}
