package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"watchfront/catalog"
	"watchfront/models"
)

// Needs a disposable database: TEST_DATABASE_URL=postgres://... go test ./storage
func TestArchiveRun(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer store.Close()

	finished := time.Now()
	run := &models.AcquisitionRun{
		ID:         uuid.New(),
		SellerID:   "watchdealer",
		Provider:   "browse",
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: &finished,
		Status:     models.RunStatusCompleted,
	}
	listings := catalog.SampleListings()
	if err := store.ArchiveRun(ctx, run, listings); err != nil {
		t.Fatalf("ArchiveRun: %v", err)
	}
	// archiving twice is idempotent
	if err := store.ArchiveRun(ctx, run, listings); err != nil {
		t.Fatalf("ArchiveRun again: %v", err)
	}

	points, err := store.PriceHistory(ctx, listings[0].ID)
	if err != nil {
		t.Fatalf("PriceHistory: %v", err)
	}
	var found bool
	for _, p := range points {
		if p.RunID == run.ID {
			found = true
			if p.Amount != "899.99" {
				t.Errorf("archived amount = %q", p.Amount)
			}
		}
	}
	if !found {
		t.Fatal("archived snapshot not found")
	}
}
