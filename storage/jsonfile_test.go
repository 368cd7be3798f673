package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"watchfront/catalog"
	"watchfront/models"
)

func TestWriteReadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "listings.json")
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := SampleDocument()
	doc.UpdatedAt = &updated
	doc.Source = "browse"

	if err := WriteDocument(path, doc); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	got, err := ReadDocument(path)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Fatalf("document changed on disk (-want +got):\n%s", diff)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestWriteDocumentEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.json")
	if err := WriteDocument(path, models.Document{}); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"itemSummaries": []`) {
		t.Fatalf("empty list should be written as [], got %s", data)
	}
}

func TestWriteDocumentReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.json")
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := WriteDocument(path, SampleDocument()); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	if _, err := ReadDocument(path); err != nil {
		t.Fatalf("replaced file unreadable: %v", err)
	}
}

func TestLoadListingsFallsBack(t *testing.T) {
	dir := t.TempDir()
	malformed := filepath.Join(dir, "bad.json")
	os.WriteFile(malformed, []byte(`{"itemSummaries": [`), 0644)

	for name, path := range map[string]string{
		"missing":   filepath.Join(dir, "nope.json"),
		"malformed": malformed,
	} {
		loaded := LoadListings(path)
		if !loaded.Fallback || loaded.Reason == nil {
			t.Errorf("%s: expected fallback with a reason, got %+v", name, loaded)
			continue
		}
		if loaded.Collection().Len() != len(catalog.SampleListings()) {
			t.Errorf("%s: fallback should serve the sample collection", name)
		}
	}
}

func TestLoadListingsKeepsLegitimateEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.json")
	os.WriteFile(path, []byte(`{"itemSummaries": []}`), 0644)

	loaded := LoadListings(path)
	if loaded.Fallback {
		t.Fatalf("empty but valid file should not fall back: %v", loaded.Reason)
	}
	if loaded.Collection().Len() != 0 {
		t.Fatalf("got %d listings", loaded.Collection().Len())
	}
}
