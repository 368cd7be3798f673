package scraper

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"watchfront/config"
	"watchfront/httputil"
	"watchfront/models"
	"watchfront/storage"
)

// Archiver keeps a history of runs and the listings they produced.
type Archiver interface {
	ArchiveRun(ctx context.Context, run *models.AcquisitionRun, listings []models.Listing) error
}

// Publisher uploads the encoded document somewhere a storefront can read it.
type Publisher interface {
	Publish(ctx context.Context, data []byte) (string, error)
}

// ProviderAttempt is the outcome of one provider within a run.
type ProviderAttempt struct {
	Provider string
	Items    int
	Err      error
}

type RunResult struct {
	Run      *models.AcquisitionRun
	Document models.Document
	Attempts []ProviderAttempt
	Fallback bool
}

type Orchestrator struct {
	cfg       *config.Config
	store     *storage.SQLiteStore
	clients   *httputil.Clients
	providers map[string]Provider
	archive   Archiver
	publisher Publisher
	paused    atomic.Bool
	mu        sync.Mutex // one run at a time
	now       func() time.Time
}

func NewOrchestrator(cfg *config.Config, store *storage.SQLiteStore, clients *httputil.Clients) (*Orchestrator, error) {
	providers := make(map[string]Provider)
	for _, id := range cfg.Acquire.Providers {
		pc, ok := cfg.Providers[id]
		if !ok {
			return nil, fmt.Errorf("unknown provider: %s", id)
		}
		p, err := NewProvider(pc, cfg.Acquire, clients)
		if err != nil {
			return nil, err
		}
		providers[id] = p
	}

	o := newOrchestrator(cfg, store, providers)
	o.clients = clients
	return o, nil
}

func newOrchestrator(cfg *config.Config, store *storage.SQLiteStore, providers map[string]Provider) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		providers: providers,
		now:       time.Now,
	}
}

// SetArchive enables the run archive. Archive failures never fail a run.
func (o *Orchestrator) SetArchive(a Archiver) {
	o.archive = a
}

// SetPublisher enables publishing the written document.
func (o *Orchestrator) SetPublisher(p Publisher) {
	o.publisher = p
}

// Run acquires listings through the configured provider chain and writes
// the document. It only returns an error when the file could not be
// written; provider failures end in the sample collection instead.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	return o.run(ctx, o.cfg.Acquire.Providers)
}

// RunProvider runs a single provider, with the same fallback and write.
func (o *Orchestrator) RunProvider(ctx context.Context, id string) (*RunResult, error) {
	if _, err := o.provider(id); err != nil {
		return nil, err
	}
	return o.run(ctx, []string{id})
}

func (o *Orchestrator) provider(id string) (Provider, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if p, ok := o.providers[id]; ok {
		return p, nil
	}
	pc, ok := o.cfg.Providers[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", id)
	}
	clients := o.clients
	if clients == nil {
		clients = httputil.NewClients(&o.cfg.Proxy)
	}
	p, err := NewProvider(pc, o.cfg.Acquire, clients)
	if err != nil {
		return nil, err
	}
	o.providers[id] = p
	return p, nil
}

func (o *Orchestrator) run(ctx context.Context, chain []string) (*RunResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	primary := "sample"
	if len(chain) > 0 {
		primary = chain[0]
	}
	run := &models.AcquisitionRun{
		ID:         uuid.New(),
		SellerID:   o.cfg.Seller.ID,
		Provider:   primary,
		StartedAt:  o.now(),
		Status:     models.RunStatusRunning,
		OutputPath: o.cfg.Acquire.OutputPath,
	}
	if o.store != nil {
		if err := o.store.CreateRun(run); err != nil {
			logger.Warnf("record run: %v", err)
		}
	}
	result := &RunResult{Run: run}

	o.log(&run.ID, models.LogLevelInfo, fmt.Sprintf("Starting acquisition for seller %q", run.SellerID), primary)

	var listings []models.Listing
	var lastErr error
	succeeded := false
	for _, id := range chain {
		p, ok := o.providers[id]
		if !ok {
			lastErr = fmt.Errorf("unknown provider: %s", id)
			o.log(&run.ID, models.LogLevelError, lastErr.Error(), id)
			result.Attempts = append(result.Attempts, ProviderAttempt{Provider: id, Err: lastErr})
			continue
		}

		items, err := p.Fetch(ctx, FetchRequest{SellerID: o.cfg.Seller.ID, MaxItems: o.cfg.Acquire.MaxItems})
		result.Attempts = append(result.Attempts, ProviderAttempt{Provider: id, Items: len(items), Err: err})
		if err != nil {
			lastErr = err
			run.ErrorsCount++
			o.log(&run.ID, models.LogLevelError, fmt.Sprintf("Provider failed: %v", err), id)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		listings = items
		run.Provider = id
		succeeded = true
		o.log(&run.ID, models.LogLevelInfo, fmt.Sprintf("Fetched %d listings", len(items)), id)
		break
	}

	var doc models.Document
	if succeeded {
		doc = models.Document{ItemSummaries: listings, Source: run.Provider}
		run.Status = models.RunStatusCompleted
		run.ItemsFound = len(listings)
	} else {
		doc = storage.SampleDocument()
		result.Fallback = true
		run.Status = models.RunStatusFallback
		if lastErr != nil {
			run.ErrorMessage = lastErr.Error()
		} else {
			run.ErrorMessage = "no providers configured"
		}
		o.log(&run.ID, models.LogLevelWarn, fmt.Sprintf("All providers failed, writing %d sample listings", len(doc.ItemSummaries)), run.Provider)
	}
	updated := o.now().UTC()
	doc.UpdatedAt = &updated
	result.Document = doc

	if err := storage.WriteDocument(run.OutputPath, doc); err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = err.Error()
		run.ErrorsCount++
		o.log(&run.ID, models.LogLevelError, fmt.Sprintf("Write failed: %v", err), run.Provider)
		o.finish(run)
		return result, fmt.Errorf("write %s: %w", run.OutputPath, err)
	}
	run.ItemsWritten = len(doc.ItemSummaries)
	o.log(&run.ID, models.LogLevelInfo, fmt.Sprintf("Wrote %d listings to %s", run.ItemsWritten, run.OutputPath), run.Provider)

	o.finish(run)
	o.export(ctx, run, doc, result.Fallback)

	return result, nil
}

func (o *Orchestrator) finish(run *models.AcquisitionRun) {
	finished := o.now()
	run.FinishedAt = &finished
	if o.store == nil {
		return
	}
	if err := o.store.UpdateRun(run); err != nil {
		logger.Warnf("update run %s: %v", run.ID, err)
	}
	if err := o.store.UpdateProviderStats(run.Provider); err != nil {
		logger.Warnf("update provider stats: %v", err)
	}
}

// export archives and publishes a written run. Sample data is published so
// the storefront has something to show, but never archived.
func (o *Orchestrator) export(ctx context.Context, run *models.AcquisitionRun, doc models.Document, fallback bool) {
	if o.archive != nil && !fallback {
		if err := o.archive.ArchiveRun(ctx, run, doc.ItemSummaries); err != nil {
			o.log(&run.ID, models.LogLevelWarn, fmt.Sprintf("Archive failed: %v", err), run.Provider)
		}
	}
	if o.publisher != nil {
		data, err := storage.EncodeDocument(doc)
		if err == nil {
			var url string
			url, err = o.publisher.Publish(ctx, data)
			if err == nil {
				o.log(&run.ID, models.LogLevelInfo, "Published to "+url, run.Provider)
			}
		}
		if err != nil {
			o.log(&run.ID, models.LogLevelWarn, fmt.Sprintf("Publish failed: %v", err), run.Provider)
		}
	}
}

// HandleCommand applies one queued command. fetch_now runs even while
// paused; pause only stops scheduled runs.
func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdFetchNow:
		params, err := o.store.ParseCommandParams(cmd)
		if err != nil {
			return err
		}
		if params.Provider != "" {
			_, err = o.RunProvider(ctx, params.Provider)
		} else {
			_, err = o.Run(ctx)
		}
		return err
	case models.CmdPause:
		o.paused.Store(true)
		logger.Infof("Acquisition paused")
	case models.CmdResume:
		o.paused.Store(false)
		logger.Infof("Acquisition resumed")
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

// ProviderIDs returns the chain in order.
func (o *Orchestrator) ProviderIDs() []string {
	return append([]string(nil), o.cfg.Acquire.Providers...)
}

// Close releases provider resources such as a running browser.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var firstErr error
	for _, p := range o.providers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (o *Orchestrator) log(runID *uuid.UUID, level models.LogLevel, message, provider string) {
	switch level {
	case models.LogLevelError:
		logger.Errorf("%s: %s", provider, message)
	case models.LogLevelWarn:
		logger.Warnf("%s: %s", provider, message)
	case models.LogLevelDebug:
		logger.Debugf("%s: %s", provider, message)
	default:
		logger.Infof("%s: %s", provider, message)
	}
	if o.store != nil {
		o.store.Log(runID, level, message, provider)
	}
}
