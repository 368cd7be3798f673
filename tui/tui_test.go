package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"watchfront/catalog"
	"watchfront/models"
	"watchfront/storage"
)

type fakePrefs struct {
	values map[string]string
	err    error
}

func (f *fakePrefs) GetPreference(key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakePrefs) SetPreference(key, value string) error {
	if f.err != nil {
		return f.err
	}
	f.values[key] = value
	return nil
}

type fakeRunStore struct {
	runs     []models.AcquisitionRun
	commands []models.CommandType
}

func (f *fakeRunStore) GetRecentRuns(limit int) ([]models.AcquisitionRun, error) {
	return f.runs, nil
}

func (f *fakeRunStore) GetRunLogs(runID uuid.UUID) ([]models.RunLog, error) {
	return []models.RunLog{{Level: models.LogLevelWarn, Message: "browse: 503, retrying"}}, nil
}

func (f *fakeRunStore) GetProviderStats(provider string) (*models.ProviderStats, error) {
	return &models.ProviderStats{Provider: provider, TotalRuns: 2, SuccessRate: 0.5}, nil
}

func (f *fakeRunStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) error {
	f.commands = append(f.commands, cmd)
	return nil
}

func testLoaded() storage.Loaded {
	listings := []models.Listing{
		{ID: "1", Title: "Seiko 5 Automatic", Price: models.Price{Amount: "120.00", Currency: "USD"},
			Attributes: []models.Attribute{{Name: "Brand", Value: "Seiko"}}},
		{ID: "2", Title: "Casio F-91W Digital", Price: models.Price{Amount: "15.00", Currency: "USD"}},
		{ID: "3", Title: "Hamilton Khaki Field Manual", Price: models.Price{Amount: "450.00", Currency: "USD"}},
	}
	for i := range listings {
		listings[i] = catalog.Normalize(listings[i])
	}
	return storage.Loaded{Document: models.Document{ItemSummaries: listings}}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(s Storefront, msgs ...tea.Msg) Storefront {
	for _, msg := range msgs {
		s, _ = s.Update(msg)
	}
	return s
}

func resultIDs(ls []models.Listing) string {
	var ids []string
	for _, l := range ls {
		ids = append(ids, l.ID)
	}
	return strings.Join(ids, ",")
}

func TestSearchIsDebounced(t *testing.T) {
	s := NewStorefront(testLoaded(), nil)
	s = press(s, runes("/"))
	if !s.Typing() {
		t.Fatal("slash should focus the search box")
	}

	s = press(s, runes("c"), runes("a"), runes("s"))
	if s.State().Search != "" {
		t.Fatalf("search applied before debounce: %q", s.State().Search)
	}
	if got := resultIDs(s.Results()); got != "1,2,3" {
		t.Fatalf("results changed before debounce: %s", got)
	}

	s = press(s, searchTickMsg{seq: 2})
	if s.State().Search != "" {
		t.Fatalf("stale tick applied search %q", s.State().Search)
	}

	s = press(s, searchTickMsg{seq: 3})
	if s.State().Search != "cas" {
		t.Fatalf("search = %q, want cas", s.State().Search)
	}
	if got := resultIDs(s.Results()); got != "2" {
		t.Fatalf("results = %s, want 2", got)
	}
}

func TestEnterAppliesSearchImmediately(t *testing.T) {
	s := NewStorefront(testLoaded(), nil)
	s = press(s, runes("/"), runes("h"), runes("a"), runes("m"), tea.KeyMsg{Type: tea.KeyEnter})
	if s.Typing() {
		t.Fatal("enter should leave the search box")
	}
	if got := resultIDs(s.Results()); got != "3" {
		t.Fatalf("results = %s, want 3", got)
	}

	// a tick queued before enter must not re-run anything
	s = press(s, searchTickMsg{seq: 3})
	if got := resultIDs(s.Results()); got != "3" {
		t.Fatalf("results after stale tick = %s", got)
	}

	s = press(s, tea.KeyMsg{Type: tea.KeyEsc})
	if s.State().Search != "" || resultIDs(s.Results()) != "1,2,3" {
		t.Fatalf("esc should clear the search, got %q %s", s.State().Search, resultIDs(s.Results()))
	}
}

func TestCategoryCycle(t *testing.T) {
	s := NewStorefront(testLoaded(), nil)

	s = press(s, tea.KeyMsg{Type: tea.KeyTab})
	if s.State().Category != "manual" {
		t.Fatalf("category = %q, want manual", s.State().Category)
	}
	if got := resultIDs(s.Results()); got != "3" {
		t.Fatalf("manual results = %s", got)
	}

	s = press(s, tea.KeyMsg{Type: tea.KeyShiftTab}, tea.KeyMsg{Type: tea.KeyShiftTab})
	if s.State().Category != "quartz" {
		t.Fatalf("category = %q, want quartz", s.State().Category)
	}
	if len(s.Results()) != 0 {
		t.Fatalf("quartz results = %s", resultIDs(s.Results()))
	}
	if !strings.Contains(s.View(), "No quartz watches found.") {
		t.Error("empty category message missing")
	}
}

func TestSortCycle(t *testing.T) {
	s := NewStorefront(testLoaded(), nil)
	s = press(s, runes("s"))
	if s.State().Sort != catalog.SortPriceAscending {
		t.Fatalf("sort = %q", s.State().Sort)
	}
	if got := resultIDs(s.Results()); got != "2,1,3" {
		t.Fatalf("price ascending = %s", got)
	}
}

func TestDisplayModePersisted(t *testing.T) {
	prefs := &fakePrefs{values: map[string]string{PrefDisplayMode: "list"}}
	s := NewStorefront(testLoaded(), prefs)
	if s.State().Display != catalog.DisplayList {
		t.Fatalf("saved display mode not restored: %q", s.State().Display)
	}

	s = press(s, runes("v"))
	if s.State().Display != catalog.DisplayGrid {
		t.Fatalf("display = %q, want grid", s.State().Display)
	}
	if prefs.values[PrefDisplayMode] != "grid" {
		t.Fatalf("saved = %q, want grid", prefs.values[PrefDisplayMode])
	}
}

func TestDisplayModeSaveFailureIsShown(t *testing.T) {
	prefs := &fakePrefs{values: map[string]string{}, err: errors.New("disk full")}
	s := press(NewStorefront(testLoaded(), prefs), runes("v"))
	if s.State().Display != catalog.DisplayList {
		t.Fatal("display should still toggle when saving fails")
	}
	if !strings.Contains(s.View(), "disk full") {
		t.Error("save failure not shown")
	}
}

func TestPickSuggestion(t *testing.T) {
	s := NewStorefront(testLoaded(), nil)
	s = press(s, runes("/"), runes("s"), runes("e"), searchTickMsg{seq: 2}, tea.KeyMsg{Type: tea.KeyEsc})
	if s.Typing() {
		t.Fatal("esc should blur the search box")
	}

	s = press(s, runes("1"))
	if s.State().Search != "Seiko 5 Automatic" {
		t.Fatalf("search = %q", s.State().Search)
	}
	if got := resultIDs(s.Results()); got != "1" {
		t.Fatalf("results = %s", got)
	}

	// out of range picks are ignored
	s = press(s, runes("5"))
	if s.State().Search != "Seiko 5 Automatic" {
		t.Fatalf("search changed to %q", s.State().Search)
	}
}

func TestExpandAndCursor(t *testing.T) {
	s := NewStorefront(testLoaded(), nil)
	s = press(s, runes("j"), tea.KeyMsg{Type: tea.KeyEnter})
	if !s.expanded[1] || s.expanded[0] {
		t.Fatalf("expanded = %v, want only index 1", s.expanded)
	}
	s = press(s, tea.KeyMsg{Type: tea.KeyEnter})
	if s.expanded[1] {
		t.Fatal("second enter should collapse")
	}

	s = press(s, runes("k"), runes("k"))
	if s.cursor != 0 {
		t.Fatalf("cursor = %d", s.cursor)
	}
}

func TestLoadFailureBanner(t *testing.T) {
	s := NewStorefront(storage.Loaded{Reason: errors.New("no such file")}, nil)
	out := s.View()
	if !strings.Contains(out, "Listings could not be loaded") {
		t.Errorf("banner missing: %q", out)
	}
	if !strings.Contains(out, "No watches available.") {
		t.Errorf("empty message missing: %q", out)
	}
}

func TestAppRoutesTypingToSearch(t *testing.T) {
	app := New(testLoaded(), nil, nil, nil)

	var m tea.Model = app
	m, _ = m.Update(runes("/"))
	m, _ = m.Update(runes("q"))

	got := m.(App)
	if got.storefront.input.Value() != "q" {
		t.Fatalf("q while typing should reach the search box, got %q", got.storefront.input.Value())
	}
}

func TestRunsTabSendsCommands(t *testing.T) {
	store := &fakeRunStore{runs: []models.AcquisitionRun{{
		ID: uuid.New(), Provider: "browse", Status: models.RunStatusFallback, ItemsWritten: 4,
	}}}
	r := NewRuns(store, []string{"browse"})

	r, _ = r.Update(r.Refresh()())
	view := r.View()
	for _, want := range []string{"browse", "fallback", "503, retrying", "Rate: 50%"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	for _, key := range []string{"f", "p", "u"} {
		_, cmd := r.Update(runes(key))
		msg, ok := cmd().(commandSentMsg)
		if !ok || msg.err != nil {
			t.Fatalf("%s: unexpected message %+v", key, msg)
		}
	}
	want := []models.CommandType{models.CmdFetchNow, models.CmdPause, models.CmdResume}
	if len(store.commands) != len(want) {
		t.Fatalf("commands = %v", store.commands)
	}
	for i := range want {
		if store.commands[i] != want[i] {
			t.Errorf("command %d = %s, want %s", i, store.commands[i], want[i])
		}
	}
}

func TestRunsTabWithoutStore(t *testing.T) {
	r := NewRuns(nil, nil)
	_, cmd := r.Update(runes("f"))
	msg := cmd().(commandSentMsg)
	if msg.err == nil {
		t.Fatal("expected error without a database")
	}
}

func TestListingTextCannotEscapeTerminal(t *testing.T) {
	hostile := "Seiko \x1b]0;pwned\x07\x1b[2J Diver"

	if got := highlight(hostile, "seiko"); strings.ContainsAny(got, "\x1b\x07") || strings.Contains(got, "pwned") {
		t.Fatalf("highlight passed control sequences through: %q", got)
	}
	got := sanitize("line\r\nbreak\x08")
	if strings.ContainsAny(got, "\r\n\x08") || !strings.HasPrefix(got, "line") || !strings.Contains(got, "break") {
		t.Fatalf("sanitize = %q", got)
	}

	listing := catalog.Normalize(models.Listing{
		ID:               "9",
		Title:            hostile,
		ShortDescription: "\x1b[31mred\x1b[0m dial",
		ExternalURL:      "https://example.test/itm/9\x1b[2J",
		Attributes:       []models.Attribute{{Name: "Brand\x1b[1m", Value: "Seiko\x07"}},
	})
	loaded := storage.Loaded{Document: models.Document{ItemSummaries: []models.Listing{listing}}}

	for _, display := range []string{"grid", "list"} {
		s := NewStorefront(loaded, &fakePrefs{values: map[string]string{PrefDisplayMode: display}})
		s = press(s, tea.KeyMsg{Type: tea.KeyEnter})
		out := s.View()
		for _, bad := range []string{"\x1b]", "\x1b[2J", "\x1b[31m", "\x07", "pwned"} {
			if strings.Contains(out, bad) {
				t.Errorf("%s view contains %q", display, bad)
			}
		}
		if !strings.Contains(out, "Diver") {
			t.Errorf("%s view lost the title text", display)
		}
	}
}
