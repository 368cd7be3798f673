package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"watchfront/catalog"
	"watchfront/models"
)

// EncodeDocument renders the document exactly as it is written to disk.
func EncodeDocument(doc models.Document) ([]byte, error) {
	if doc.ItemSummaries == nil {
		doc.ItemSummaries = []models.Listing{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDocument replaces path atomically: readers see either the previous
// file or the complete new one.
func WriteDocument(path string, doc models.Document) error {
	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func ReadDocument(path string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := catalog.DecodeDocument(data)
	if err != nil {
		return models.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Loaded is what the storefront serves. When the file could not be used,
// Fallback is set, Reason says why and Document holds the sample listings.
type Loaded struct {
	Document models.Document
	Fallback bool
	Reason   error
}

func (l Loaded) Collection() *catalog.Collection {
	return catalog.NewCollection(l.Document.ItemSummaries)
}

// LoadListings reads the acquisition output, degrading to the built-in
// sample when the file is missing or malformed.
func LoadListings(path string) Loaded {
	doc, err := ReadDocument(path)
	if err != nil {
		return Loaded{Document: SampleDocument(), Fallback: true, Reason: err}
	}
	return Loaded{Document: doc}
}

// SampleDocument wraps the built-in sample collection.
func SampleDocument() models.Document {
	sample := catalog.SampleListings()
	for i := range sample {
		sample[i] = catalog.Normalize(sample[i])
	}
	return models.Document{ItemSummaries: sample, Source: "sample"}
}
