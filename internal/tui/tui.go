// Package tui provides a terminal user interface for browsing nearby restaurants.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"swood/backend"
	"swood/internal/store"
	"swood/internal/syncer"
	"swood/internal/utils"
)

// Syncer runs load sessions (satisfied by *syncer.Orchestrator)
type Syncer interface {
	Run(ctx context.Context, force bool) (syncer.Result, error)
}

// Favorites persists the user's favorite restaurants (satisfied by *cache.Cache)
type Favorites interface {
	Favorites(ctx context.Context) []backend.Restaurant
	ToggleFavorite(ctx context.Context, r backend.Restaurant) bool
}

// Screen is the list shown in the main pane
type Screen int

const (
	ScreenNearby Screen = iota
	ScreenFavorites
)

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeFilter
	ModeHelp
	ModeDetail
	ModeError
)

// Model represents the TUI state
type Model struct {
	store     *store.Store
	syncer    Syncer
	favorites Favorites
	ctx       context.Context
	cancel    context.CancelFunc

	// Data
	state       store.State
	favList     []backend.Restaurant
	favIDs      map[int64]bool
	filteredIdx []int // indices into the current screen's restaurants

	// Store notifications
	updates     chan struct{}
	unsubscribe func()

	// Selection
	cursor int
	offset int
	screen Screen

	// Mode and input
	mode      Mode
	textInput textinput.Model
	spinner   spinner.Model
	filter    string
	dismissed string // error message the user already closed
	detail    *backend.Restaurant

	// UI dimensions
	width  int
	height int

	// Styles
	paneStyle      lipgloss.Style
	selectedStyle  lipgloss.Style
	favoriteStyle  lipgloss.Style
	mutedStyle     lipgloss.Style
	helpStyle      lipgloss.Style
	dialogStyle    lipgloss.Style
	errorStyle     lipgloss.Style
	statusBarStyle lipgloss.Style
}

// Message types
type stateChangedMsg struct{}

// LocationChangedMsg asks the model to run a regular session, e.g. after the
// location settings were reloaded. Send it with tea.Program.Send.
type LocationChangedMsg struct{}

type sessionDoneMsg struct {
	result syncer.Result
	err    error
}

type favoritesLoadedMsg struct {
	favorites []backend.Restaurant
}

// New creates a new TUI model. The model subscribes to st immediately; the
// subscription ends when the program quits. Sessions started by the model
// run under ctx and are cancelled on quit.
func New(ctx context.Context, st *store.Store, s Syncer, f Favorites) *Model {
	ctx, cancel := context.WithCancel(ctx)

	ti := textinput.New()
	ti.Placeholder = "Search..."
	ti.CharLimit = 64

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		store:     st,
		syncer:    s,
		favorites: f,
		ctx:       ctx,
		cancel:    cancel,
		state:     st.State(),
		favIDs:    make(map[int64]bool),
		updates:   make(chan struct{}, 1),
		textInput: ti,
		spinner:   sp,
		mode:      ModeNormal,
		paneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		favoriteStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")),
		mutedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		errorStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
	}

	// The listener only signals; Update reads a fresh snapshot itself.
	m.unsubscribe = st.Subscribe(func(store.State) {
		select {
		case m.updates <- struct{}{}:
		default:
		}
	})
	m.applyFilter()
	return m
}

// Init starts the first load session
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.runSession(false), m.loadFavorites())
}

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.updates:
			return stateChangedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) runSession(force bool) tea.Cmd {
	return func() tea.Msg {
		res, err := m.syncer.Run(m.ctx, force)
		return sessionDoneMsg{result: res, err: err}
	}
}

func (m *Model) loadFavorites() tea.Cmd {
	return func() tea.Msg {
		return favoritesLoadedMsg{favorites: m.favorites.Favorites(m.ctx)}
	}
}

func (m *Model) quit() (tea.Model, tea.Cmd) {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.cancel()
	return m, tea.Quit
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case stateChangedMsg:
		wasLoading := m.state.Loading
		m.state = m.store.State()
		m.applyFilter()
		if m.state.HasError() && m.state.Err != m.dismissed {
			m.mode = ModeError
		}
		cmds := []tea.Cmd{m.waitForUpdate()}
		if m.state.Loading && !wasLoading {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case sessionDoneMsg:
		// Failures reach the user through the store error.
		if msg.err != nil {
			utils.Debugf("session %s ended in %s: %v", msg.result.SessionID, msg.result.State, msg.err)
		}
		return m, nil

	case favoritesLoadedMsg:
		m.setFavorites(msg.favorites)
		return m, nil

	case LocationChangedMsg:
		return m, m.runSession(false)

	case spinner.TickMsg:
		if !m.state.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.mode {
		case ModeFilter:
			return m.handleFilterMode(msg)
		case ModeHelp:
			return m.handleHelpMode(msg)
		case ModeDetail:
			return m.handleDetailMode(msg)
		case ModeError:
			return m.handleErrorMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	if m.mode == ModeFilter {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m.quit()

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.filteredIdx)-1 {
			m.cursor++
		}
		return m, nil

	case "tab", "f":
		if m.screen == ScreenNearby {
			m.screen = ScreenFavorites
		} else {
			m.screen = ScreenNearby
		}
		m.cursor = 0
		m.applyFilter()
		return m, nil

	case "enter":
		if r := m.selected(); r != nil {
			m.detail = r
			m.mode = ModeDetail
		}
		return m, nil

	case "s", " ":
		if r := m.selected(); r != nil {
			m.toggleFavorite(*r)
		}
		return m, nil

	case "r":
		m.dismissed = ""
		return m, m.runSession(true)

	case "/":
		m.mode = ModeFilter
		m.textInput.Reset()
		m.textInput.SetValue(m.filter)
		m.textInput.Focus()
		return m, textinput.Blink

	case "?":
		m.mode = ModeHelp
		return m, nil
	}
	return m, nil
}

func (m *Model) handleFilterMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.filter = strings.TrimSpace(m.textInput.Value())
		m.applyFilter()
		m.mode = ModeNormal
		return m, nil

	case tea.KeyEsc:
		m.filter = ""
		m.applyFilter()
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleHelpMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}
	m.mode = ModeNormal
	return m, nil
}

func (m *Model) handleDetailMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "enter", "q", "backspace":
		m.mode = ModeNormal
		m.detail = nil
	case "s", " ":
		if m.detail != nil {
			m.toggleFavorite(*m.detail)
		}
	case "ctrl+c":
		return m.quit()
	}
	return m, nil
}

func (m *Model) handleErrorMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		m.dismissed = ""
		m.mode = ModeNormal
		return m, m.runSession(true)
	case "esc", "enter":
		m.dismissed = m.state.Err
		m.mode = ModeNormal
	case "q", "ctrl+c":
		return m.quit()
	}
	return m, nil
}

func (m *Model) toggleFavorite(r backend.Restaurant) {
	m.favorites.ToggleFavorite(m.ctx, r)
	m.setFavorites(m.favorites.Favorites(m.ctx))
}

func (m *Model) setFavorites(favs []backend.Restaurant) {
	m.favList = favs
	m.favIDs = make(map[int64]bool, len(favs))
	for _, f := range favs {
		m.favIDs[f.ID] = true
	}
	m.applyFilter()
}

// restaurants returns the list backing the current screen
func (m *Model) restaurants() []backend.Restaurant {
	if m.screen == ScreenFavorites {
		return m.favList
	}
	return m.state.Restaurants
}

func (m *Model) selected() *backend.Restaurant {
	if m.cursor < 0 || m.cursor >= len(m.filteredIdx) {
		return nil
	}
	r := m.restaurants()[m.filteredIdx[m.cursor]]
	return &r
}

func (m *Model) applyFilter() {
	m.filteredIdx = nil
	needle := strings.ToLower(m.filter)
	for i, r := range m.restaurants() {
		if needle == "" ||
			strings.Contains(strings.ToLower(r.Name), needle) ||
			strings.Contains(strings.ToLower(r.Cuisine), needle) {
			m.filteredIdx = append(m.filteredIdx, i)
		}
	}
	if m.cursor >= len(m.filteredIdx) {
		m.cursor = 0
	}
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeFilter:
		return m.renderFilterDialog()
	case ModeHelp:
		return m.renderHelpDialog()
	case ModeDetail:
		return m.renderDetailDialog()
	case ModeError:
		return m.renderErrorDialog()
	}

	var b strings.Builder
	paneWidth := m.width - 2
	content := m.renderListPane(paneWidth - 4)
	b.WriteString(m.paneStyle.Width(paneWidth).Height(m.height - 4).Render(content))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderTabs() string {
	nearby := fmt.Sprintf("Nearby (%d)", len(m.state.Restaurants))
	favs := fmt.Sprintf("Favorites (%d)", len(m.favList))
	if m.screen == ScreenNearby {
		nearby = m.selectedStyle.Render(nearby)
		favs = m.mutedStyle.Render(favs)
	} else {
		nearby = m.mutedStyle.Render(nearby)
		favs = m.selectedStyle.Render(favs)
	}
	return nearby + "  " + favs
}

func (m *Model) renderListPane(width int) string {
	var b strings.Builder
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", width))
	b.WriteString("\n")

	if len(m.filteredIdx) == 0 {
		switch {
		case m.state.Loading && m.screen == ScreenNearby:
			b.WriteString(m.spinner.View() + " Looking for restaurants...\n")
		case m.screen == ScreenFavorites && m.filter == "":
			b.WriteString("No favorites yet\n")
		default:
			b.WriteString("No restaurants\n")
		}
		return b.String()
	}

	rows := m.height - 8
	if rows < 1 {
		rows = 1
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	end := m.offset + rows
	if end > len(m.filteredIdx) {
		end = len(m.filteredIdx)
	}

	list := m.restaurants()
	for fi := m.offset; fi < end; fi++ {
		r := list[m.filteredIdx[fi]]
		cursor := " "
		name := r.Name
		if fi == m.cursor {
			cursor = ">"
			name = m.selectedStyle.Render(name)
		}
		star := " "
		if m.favIDs[r.ID] {
			star = m.favoriteStyle.Render("★")
		}
		line := cursor + " " + star + " " + name
		if r.Cuisine != "" {
			line += "  " + m.mutedStyle.Render(r.Cuisine)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m *Model) renderStatusBar() string {
	left := "No data"
	switch {
	case m.state.Loading:
		left = m.spinner.View() + " Loading..."
	case m.state.HasError():
		left = "Error: " + m.state.Err
	case m.state.LastFetch != nil:
		left = "Updated " + m.state.LastFetch.Local().Format("15:04")
	}

	right := "r:refresh  q:quit  ?:help"
	if m.filter != "" {
		right = "Filter: " + m.filter + "  " + right
	}

	padding := m.width - lipgloss.Width(left) - len(right) - 2
	if padding < 1 {
		padding = 1
	}

	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderFilterDialog() string {
	dialog := m.dialogStyle.Render(
		"Search Restaurants\n\n" +
			m.textInput.View() + "\n\n" +
			m.helpStyle.Render("Enter: filter  Esc: clear"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderDetailDialog() string {
	r := m.detail
	if r == nil {
		return ""
	}

	var b strings.Builder
	title := r.Name
	if m.favIDs[r.ID] {
		title += " " + m.favoriteStyle.Render("★")
	}
	b.WriteString(m.selectedStyle.Render(title) + "\n\n")

	field := func(label, value string) {
		if value != "" {
			b.WriteString(fmt.Sprintf("%-9s %s\n", label+":", value))
		}
	}
	field("Cuisine", r.Cuisine)
	field("Address", r.Address)
	field("City", r.City)
	field("Phone", r.Phone)
	field("Website", r.Website)
	field("Location", fmt.Sprintf("%.4f, %.4f", r.Latitude, r.Longitude))

	b.WriteString("\n" + m.helpStyle.Render("s: toggle favorite  Esc: back"))
	return m.centerDialog(m.dialogStyle.Render(b.String()))
}

func (m *Model) renderErrorDialog() string {
	dialog := m.errorStyle.Render(
		"Could not load restaurants\n\n" +
			m.state.Err + "\n\n" +
			m.helpStyle.Render("r: retry  Esc: dismiss  q: quit"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderHelpDialog() string {
	help := `Help - Key Bindings

Navigation:
  j/↓    Move down
  k/↑    Move up
  Tab/f  Switch between nearby and favorites
  Enter  Show restaurant details

Actions:
  s      Toggle favorite
  r      Refresh from the network
  /      Search by name or cuisine

General:
  ?      Show this help
  q      Quit

Press any key to close`

	dialog := m.dialogStyle.Render(help)
	return m.centerDialog(dialog)
}

func (m *Model) centerDialog(dialog string) string {
	lines := strings.Split(dialog, "\n")
	dialogHeight := len(lines)
	dialogWidth := 0
	for _, line := range lines {
		if w := lipgloss.Width(line); w > dialogWidth {
			dialogWidth = w
		}
	}

	topPad := (m.height - dialogHeight) / 2
	leftPad := (m.width - dialogWidth) / 2

	if topPad < 0 {
		topPad = 0
	}
	if leftPad < 0 {
		leftPad = 0
	}

	var b strings.Builder
	for i := 0; i < topPad; i++ {
		b.WriteString("\n")
	}
	for _, line := range lines {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}
