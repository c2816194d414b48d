package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/regroup/internal/models"
	"github.com/desertthunder/regroup/internal/tasks"
)

// DefaultInterval is how often the monitor refreshes from the store.
const DefaultInterval = 2 * time.Second

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ListView ViewState = iota
	DetailView
	ConfirmView
)

// Source is the read side of the engine plus operator completion.
type Source interface {
	ListOperations(ctx context.Context, includeArchived bool) ([]*models.OperationStatus, error)
	GetOperationStatus(ctx context.Context, id string) (*models.OperationStatus, error)
	CompleteOperation(ctx context.Context, id string, success bool, message string) error
}

// Opts configures a [Model].
type Opts struct {
	Source          Source
	Interval        time.Duration              // refresh interval, DefaultInterval when zero
	IncludeArchived bool                       // list archived operations too
	OperationID     string                     // open this operation's details directly
	Progress        <-chan tasks.ProgressUpdate // optional live updates from an in-process engine
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	source   Source
	interval time.Duration
	archived bool
	pinned   bool // opened on a single operation, no list to go back to

	width  int
	height int

	operations list.Model
	selected   *models.OperationStatus
	selectedID string
	invite     progress.Model
	joins      progress.Model

	progressChan <-chan tasks.ProgressUpdate
	last         tasks.ProgressUpdate
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Opts) *Model {
	m := &Model{
		ctx:          ctx,
		view:         ListView,
		source:       opts.Source,
		interval:     opts.Interval,
		archived:     opts.IncludeArchived,
		progressChan: opts.Progress,
		invite:       progress.New(progress.WithDefaultGradient()),
		joins:        progress.New(progress.WithSolidFill("#04B575")),
		help:         help.New(),
		keys:         newKeyMap(),
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}

	m.operations = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.operations.Title = "Migrations"

	if opts.OperationID != "" {
		m.view = DetailView
		m.pinned = true
		m.selectedID = opts.OperationID
	}
	return m
}

// ViewState returns the current view.
func (m *Model) ViewState() ViewState { return m.view }

// Init fetches the first data and starts the refresh ticker.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick(), m.waitForProgress())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.operations.SetSize(msg.Width-4, msg.Height-6)
		w := min(max(msg.Width-24, 10), 60)
		m.invite.Width = w
		m.joins.Width = w
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ListView:
			return m.handleListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	if m.view == ListView {
		m.operations, cmd = m.operations.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgOperationsFetched:
		data := msg.data.(operationsFetched)
		m.err = data.err
		if data.err != nil {
			return m, nil
		}
		items := make([]list.Item, len(data.ops))
		for i, op := range data.ops {
			items[i] = operationItem{op: op}
		}
		return m, m.operations.SetItems(items)

	case MsgStatusFetched:
		data := msg.data.(statusFetched)
		m.err = data.err
		if data.err == nil {
			m.selected = data.status
		}
		return m, nil

	case MsgProgressUpdate:
		m.last = msg.data.(tasks.ProgressUpdate)
		return m, tea.Batch(m.refresh(), m.waitForProgress())

	case MsgProgressClosed:
		m.progressChan = nil
		return m, nil

	case MsgTick:
		return m, tea.Batch(m.refresh(), m.tick())

	case MsgCompleted:
		data := msg.data.(statusFetched)
		m.err = data.err
		m.view = DetailView
		return m, m.fetchStatus(data.status.ID)
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case ListView:
		body = m.renderList()
	case DetailView:
		body = m.renderDetail()
	case ConfirmView:
		body = m.renderConfirm()
	}

	if m.err != nil {
		body += "\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	}
	return body
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.operations.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.operations, cmd = m.operations.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keys.archived):
		m.archived = !m.archived
		return m, m.refresh()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.operations.SelectedItem().(operationItem); ok {
			m.view = DetailView
			m.selected = item.op
			m.selectedID = item.op.ID
			return m, m.fetchStatus(item.op.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.operations, cmd = m.operations.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		if m.pinned {
			return m, nil
		}
		m.view = ListView
		m.selected = nil
		m.selectedID = ""
		return m, m.refresh()
	case key.Matches(msg, m.keys.refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keys.complete):
		if m.selected != nil && !m.selected.Archived {
			m.view = ConfirmView
		}
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		return m, m.complete(m.selectedID)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.view = DetailView
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) refresh() tea.Cmd {
	if m.view == ListView {
		return m.fetchOperations()
	}
	return m.fetchStatus(m.selectedID)
}

func (m *Model) fetchOperations() tea.Cmd {
	archived := m.archived
	return func() tea.Msg {
		ops, err := m.source.ListOperations(m.ctx, archived)
		return operationsFetchedMsg(ops, err)
	}
}

func (m *Model) fetchStatus(id string) tea.Cmd {
	return func() tea.Msg {
		status, err := m.source.GetOperationStatus(m.ctx, id)
		return statusFetchedMsg(status, err)
	}
}

func (m *Model) complete(id string) tea.Cmd {
	return func() tea.Msg {
		err := m.source.CompleteOperation(m.ctx, id, true, "closed from monitor")
		return completedMsg(id, err)
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg() })
}

func (m *Model) waitForProgress() tea.Cmd {
	ch := m.progressChan
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-ch
		if !ok {
			return progressClosedMsg()
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.refresh, m.keys.archived, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.operations.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderDetail() string {
	op := m.selected
	if op == nil {
		return styles.help.Render("Loading " + m.selectedID + "...")
	}

	name := op.RequestedName
	if name == "" {
		name = op.ID
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(name))
	b.WriteString("\n")

	status := styles.Status(op.Status)
	if op.Archived {
		status += styles.help.Render(" (archived)")
	}
	fmt.Fprintf(&b, "Status:  %s\n", status)
	fmt.Fprintf(&b, "Source:  %s\n", op.SourceGroupID)
	if op.TargetGroupID != "" {
		fmt.Fprintf(&b, "Target:  %s\n", op.TargetGroupID)
	}

	fmt.Fprintf(&b, "\nInvited %d/%d\n%s\n", op.Invited, op.TotalToInvite, m.invite.ViewAs(float64(op.MigrationProgress)/100))
	fmt.Fprintf(&b, "Joined  %d/%d\n%s\n", op.Joined, op.Invited, m.joins.ViewAs(float64(op.JoinPercentage)/100))

	counts := fmt.Sprintf("Rejected %d • Pending %d • Excluded %d", op.Rejected, op.Pending, op.Excluded)
	if op.Rejected > 0 {
		counts = styles.warn.Render(counts)
	}
	b.WriteString("\n" + counts + "\n")

	if op.Error != "" {
		b.WriteString(styles.err.Render("Error: "+op.Error) + "\n")
	}

	if len(op.RecentMessages) > 0 {
		b.WriteString("\n")
		for _, entry := range op.RecentMessages {
			fmt.Fprintf(&b, "%s %s\n", styles.help.Render(entry.Time.Local().Format(time.TimeOnly)), entry.Message)
		}
	}

	if m.last.Message != "" && m.last.OperationID == op.ID {
		b.WriteString("\n" + styles.ok.Render(m.last.Message) + "\n")
	}

	helpKeys := []key.Binding{m.keys.refresh, m.keys.complete, m.keys.quit}
	if !m.pinned {
		helpKeys = append([]key.Binding{m.keys.back}, helpKeys...)
	}
	b.WriteString("\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Complete migration %s?", m.selectedID))
	info := "The operation will be archived and stop accepting joins.\n"

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.help.ShortHelpView(helpKeys))
}
