package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"watchfront/catalog"
	"watchfront/models"
	"watchfront/storage"
)

const (
	// PrefDisplayMode is the preferences key for the grid/list choice.
	PrefDisplayMode = "display_mode"

	searchDebounce = 300 * time.Millisecond
	cardWidth      = 34
)

// PrefStore persists the single client preference.
type PrefStore interface {
	GetPreference(key string) (string, bool, error)
	SetPreference(key, value string) error
}

// searchTickMsg fires after the debounce. Ticks whose seq is older than the
// latest keystroke are dropped.
type searchTickMsg struct {
	seq int
}

type Storefront struct {
	collection *catalog.Collection
	loaded     storage.Loaded
	prefs      PrefStore

	view        catalog.ViewState
	input       textinput.Model
	results     []models.Listing
	suggestions []catalog.Suggestion
	seq         int
	cursor      int
	expanded    map[int]bool
	notice      string

	width, height int
}

func NewStorefront(loaded storage.Loaded, prefs PrefStore) Storefront {
	input := textinput.New()
	input.Placeholder = "Search watches"
	input.Prompt = "/ "
	input.CharLimit = 80

	s := Storefront{
		collection: loaded.Collection(),
		loaded:     loaded,
		prefs:      prefs,
		view:       catalog.DefaultViewState(),
		input:      input,
		expanded:   make(map[int]bool),
	}
	if prefs != nil {
		if v, ok, err := prefs.GetPreference(PrefDisplayMode); err == nil && ok {
			if d, valid := catalog.ParseDisplayMode(v); valid {
				s.view.Display = d
			}
		}
	}
	s.recompute()
	return s
}

func (s Storefront) Init() tea.Cmd {
	return nil
}

// Typing reports whether keys go to the search box.
func (s Storefront) Typing() bool {
	return s.input.Focused()
}

func (s Storefront) State() catalog.ViewState {
	return s.view
}

func (s Storefront) Results() []models.Listing {
	return s.results
}

func (s Storefront) SetSize(w, h int) Storefront {
	s.width = w
	s.height = h
	s.input.Width = w - 4
	return s
}

func (s *Storefront) recompute() {
	s.results = catalog.ApplyView(s.collection, s.view)
	s.suggestions = catalog.Suggest(s.collection, s.view.Search)
	s.cursor = 0
	s.expanded = make(map[int]bool)
}

func (s Storefront) Update(msg tea.Msg) (Storefront, tea.Cmd) {
	switch msg := msg.(type) {
	case searchTickMsg:
		if msg.seq != s.seq {
			return s, nil
		}
		s.view.Search = s.input.Value()
		s.recompute()
		return s, nil

	case tea.KeyMsg:
		if s.input.Focused() {
			return s.updateTyping(msg)
		}
		return s.updateBrowsing(msg)
	}
	return s, nil
}

func (s Storefront) updateTyping(msg tea.KeyMsg) (Storefront, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		s.input.Blur()
		return s, nil
	case tea.KeyEnter:
		s.input.Blur()
		s.seq++
		s.view.Search = s.input.Value()
		s.recompute()
		return s, nil
	}

	before := s.input.Value()
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	if s.input.Value() == before {
		return s, cmd
	}

	s.seq++
	seq := s.seq
	tick := tea.Tick(searchDebounce, func(time.Time) tea.Msg {
		return searchTickMsg{seq: seq}
	})
	return s, tea.Batch(cmd, tick)
}

func (s Storefront) updateBrowsing(msg tea.KeyMsg) (Storefront, tea.Cmd) {
	switch key := msg.String(); key {
	case "/":
		cmd := s.input.Focus()
		return s, cmd
	case "esc":
		if s.view.Search != "" {
			s.seq++
			s.input.SetValue("")
			s.view.Search = ""
			s.recompute()
		}
	case "tab":
		s.view.Category = cycleCategory(s.view.Category, 1)
		s.recompute()
	case "shift+tab":
		s.view.Category = cycleCategory(s.view.Category, -1)
		s.recompute()
	case "s":
		s.view.Sort = nextSort(s.view.Sort)
		s.recompute()
	case "v":
		s.view.Display = s.view.Display.Toggle()
		s.notice = ""
		if s.prefs != nil {
			if err := s.prefs.SetPreference(PrefDisplayMode, string(s.view.Display)); err != nil {
				s.notice = "Could not save display mode: " + err.Error()
			}
		}
	case "up", "k":
		if s.cursor > 0 {
			s.cursor--
		}
	case "down", "j":
		if s.cursor < len(s.results)-1 {
			s.cursor++
		}
	case "enter":
		if len(s.results) > 0 {
			s.expanded[s.cursor] = !s.expanded[s.cursor]
		}
	case "1", "2", "3", "4", "5":
		i := int(key[0] - '1')
		if i < len(s.suggestions) {
			text := sanitize(s.suggestions[i].Text)
			s.seq++
			s.input.SetValue(text)
			s.view.Search = text
			s.recompute()
		}
	}
	return s, nil
}

func cycleCategory(current string, step int) string {
	options := []string{catalog.CategoryAll}
	for _, c := range models.Categories {
		options = append(options, string(c))
	}
	i := 0
	for j, o := range options {
		if o == current {
			i = j
		}
	}
	i = (i + step + len(options)) % len(options)
	return options[i]
}

func nextSort(current catalog.SortMode) catalog.SortMode {
	for i, m := range catalog.SortModes {
		if m == current {
			return catalog.SortModes[(i+1)%len(catalog.SortModes)]
		}
	}
	return catalog.SortUnsorted
}

func (s Storefront) View() string {
	sections := []string{
		s.renderControls(),
		s.input.View(),
	}
	if len(s.suggestions) > 0 {
		sections = append(sections, s.renderSuggestions())
	}
	if s.collection.Len() == 0 && s.loaded.Reason != nil {
		sections = append(sections, statusError.Render("Listings could not be loaded: "+sanitize(s.loaded.Reason.Error())))
	}
	if status := catalog.StatusMessage(s.view, len(s.results)); status != "" {
		sections = append(sections, titleStyle.Render(status))
	}
	if s.notice != "" {
		sections = append(sections, statusError.Render(s.notice))
	}

	if s.view.Display == catalog.DisplayList {
		sections = append(sections, s.renderList())
	} else {
		sections = append(sections, s.renderGrid())
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (s Storefront) renderControls() string {
	var tabs []string
	for _, c := range append([]string{catalog.CategoryAll}, categoryNames()...) {
		if c == s.view.Category {
			tabs = append(tabs, tabActiveStyle.Render(c))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(c))
		}
	}
	info := mutedStyle.Render(fmt.Sprintf("sort: %s  view: %s", s.view.Sort, s.view.Display))
	if s.loaded.Document.UpdatedAt != nil {
		info += mutedStyle.Render("  updated " + s.loaded.Document.UpdatedAt.Local().Format("Jan 2 15:04"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...) + "\n" + info
}

func categoryNames() []string {
	var names []string
	for _, c := range models.Categories {
		names = append(names, string(c))
	}
	return names
}

func (s Storefront) renderSuggestions() string {
	var lines []string
	for i, sg := range s.suggestions {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("%d ", i+1))+sanitize(sg.Text)+mutedStyle.Render(" ("+sg.Source+")"))
	}
	return strings.Join(lines, "\n")
}

func (s Storefront) renderList() string {
	term := s.view.SearchTerm()
	var rows []string
	for i := range s.results {
		l := &s.results[i]
		line := fmt.Sprintf("%s %s  %s", badge(string(catalog.Classify(l))), highlight(l.Title, term), priceStyle.Render(sanitize(catalog.FormatPrice(l.Price))))
		if i == s.cursor {
			line = selectedRowStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		rows = append(rows, line)
		if s.expanded[i] {
			rows = append(rows, s.renderDetails(l, term, s.width-6))
		}
	}
	return strings.Join(rows, "\n")
}

func (s Storefront) renderGrid() string {
	cols := 1
	if s.width > cardWidth+2 {
		cols = s.width / (cardWidth + 2)
	}
	term := s.view.SearchTerm()

	var rows, row []string
	for i := range s.results {
		l := &s.results[i]
		body := []string{
			badge(string(catalog.Classify(l))),
			highlight(l.Title, term),
			priceStyle.Render(sanitize(catalog.FormatPrice(l.Price))),
		}
		if s.expanded[i] {
			body = append(body, s.renderDetails(l, term, cardWidth-4))
		} else if l.ShortDescription != "" {
			body = append(body, mutedStyle.Render(highlight(l.ShortDescription, term)))
		}

		style := cardStyle
		if i == s.cursor {
			style = selectedCardStyle
		}
		row = append(row, style.Width(cardWidth).Render(strings.Join(body, "\n")))
		if len(row) == cols {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return strings.Join(rows, "\n")
}

func (s Storefront) renderDetails(l *models.Listing, term string, width int) string {
	lines := []string{highlight(l.Description(), term)}
	for _, a := range l.DisplayAttributes() {
		lines = append(lines, mutedStyle.Render(sanitize(a.Name)+": ")+highlight(a.Value, term))
	}
	if l.ExternalURL != "" {
		lines = append(lines, mutedStyle.Render(sanitize(l.ExternalURL)))
	}
	style := lipgloss.NewStyle().PaddingLeft(2)
	if width > 0 {
		style = style.Width(width)
	}
	return style.Render(strings.Join(lines, "\n"))
}

// sanitize drops terminal escape sequences and turns any remaining control
// runes into spaces, so listing text can only ever print as text.
func sanitize(s string) string {
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

// highlight sanitizes text and styles every case-insensitive occurrence of
// term. Matching runs on the sanitized text.
func highlight(text, term string) string {
	text = sanitize(text)
	term = sanitize(term)
	if term == "" || text == "" {
		return text
	}
	src := []rune(text)
	needle := []rune(term)
	for i := range needle {
		needle[i] = unicode.ToLower(needle[i])
	}

	var b strings.Builder
	start := 0
	for i := 0; i+len(needle) <= len(src); {
		match := true
		for j, r := range needle {
			if unicode.ToLower(src[i+j]) != r {
				match = false
				break
			}
		}
		if !match {
			i++
			continue
		}
		b.WriteString(string(src[start:i]))
		b.WriteString(highlightStyle.Render(string(src[i : i+len(needle)])))
		i += len(needle)
		start = i
	}
	b.WriteString(string(src[start:]))
	return b.String()
}
