package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/regroup/internal/models"
	"github.com/desertthunder/regroup/internal/tasks"
)

type fakeSource struct {
	mu        sync.Mutex
	ops       map[string]*models.OperationStatus
	completed []string
	err       error
}

func newFakeSource(ops ...*models.OperationStatus) *fakeSource {
	s := &fakeSource{ops: map[string]*models.OperationStatus{}}
	for _, op := range ops {
		s.ops[op.ID] = op
	}
	return s
}

func (s *fakeSource) ListOperations(_ context.Context, includeArchived bool) ([]*models.OperationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.OperationStatus
	for _, op := range s.ops {
		if op.Archived && !includeArchived {
			continue
		}
		out = append(out, op)
	}
	return out, nil
}

func (s *fakeSource) GetOperationStatus(_ context.Context, id string) (*models.OperationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return op, nil
}

func (s *fakeSource) CompleteOperation(_ context.Context, id string, _ bool, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, id)
	s.ops[id].Archived = true
	s.ops[id].Status = models.StatusCompleted
	return nil
}

func testStatus() *models.OperationStatus {
	return &models.OperationStatus{
		ID:                "op-1",
		SourceGroupID:     "120363111111111111@g.us",
		TargetGroupID:     "120363999999999999@g.us",
		RequestedName:     "Book club",
		Status:            models.StatusInviting,
		TotalToInvite:     48,
		Invited:           15,
		Pending:           33,
		MigrationProgress: 31,
		RecentMessages:    []models.LogEntry{{Message: "Batch sent: 15 of 15 added"}},
	}
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	if _, ok := msg.(Msg); !ok {
		t.Fatalf("expected a ui message, got %T", msg)
	}
	m.Update(msg)
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestModel(t *testing.T) {
	ctx := context.Background()

	t.Run("list then details", func(t *testing.T) {
		src := newFakeSource(testStatus())
		m := NewModel(ctx, Opts{Source: src})
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

		run(t, m, m.fetchOperations())
		if n := len(m.operations.Items()); n != 1 {
			t.Fatalf("expected 1 item, got %d", n)
		}
		if !strings.Contains(m.View(), "Book club") {
			t.Errorf("list view missing operation:\n%s", m.View())
		}

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if m.ViewState() != DetailView {
			t.Fatalf("expected detail view, got %v", m.ViewState())
		}
		run(t, m, cmd)

		view := m.View()
		for _, want := range []string{"Invited 15/48", "Pending 33", "Batch sent: 15 of 15 added", "120363999999999999@g.us"} {
			if !strings.Contains(view, want) {
				t.Errorf("detail view missing %q:\n%s", want, view)
			}
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.ViewState() != ListView {
			t.Errorf("expected list view after esc, got %v", m.ViewState())
		}
	})

	t.Run("complete with confirmation", func(t *testing.T) {
		src := newFakeSource(testStatus())
		m := NewModel(ctx, Opts{Source: src, OperationID: "op-1"})
		run(t, m, m.refresh())

		m.Update(runeKey('c'))
		if m.ViewState() != ConfirmView {
			t.Fatalf("expected confirm view, got %v", m.ViewState())
		}

		m.Update(runeKey('n'))
		if m.ViewState() != DetailView || len(src.completed) != 0 {
			t.Fatal("expected cancel to return to details without completing")
		}

		m.Update(runeKey('c'))
		_, cmd := m.Update(runeKey('y'))
		run(t, m, cmd)
		if len(src.completed) != 1 {
			t.Fatalf("expected one completion, got %v", src.completed)
		}
		if m.ViewState() != DetailView {
			t.Errorf("expected detail view, got %v", m.ViewState())
		}

		run(t, m, m.fetchStatus("op-1"))
		if !m.selected.Archived {
			t.Error("expected refreshed archived status")
		}

		// archived operations cannot be completed again
		m.Update(runeKey('c'))
		if m.ViewState() != DetailView {
			t.Errorf("expected to stay on details, got %v", m.ViewState())
		}
	})

	t.Run("pinned operation ignores back", func(t *testing.T) {
		m := NewModel(ctx, Opts{Source: newFakeSource(testStatus()), OperationID: "op-1"})
		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.ViewState() != DetailView {
			t.Errorf("expected detail view, got %v", m.ViewState())
		}
	})

	t.Run("errors are shown", func(t *testing.T) {
		src := newFakeSource()
		src.err = errors.New("database is locked")
		m := NewModel(ctx, Opts{Source: src})

		run(t, m, m.fetchOperations())
		if !strings.Contains(m.View(), "database is locked") {
			t.Errorf("expected error in view:\n%s", m.View())
		}
	})

	t.Run("progress updates", func(t *testing.T) {
		ch := make(chan tasks.ProgressUpdate, 1)
		m := NewModel(ctx, Opts{Source: newFakeSource(testStatus()), OperationID: "op-1", Progress: ch})
		run(t, m, m.refresh())

		ch <- tasks.ProgressUpdate{OperationID: "op-1", Phase: tasks.PhaseMonitoring, Message: "All invitations sent, monitoring joins"}
		run(t, m, m.waitForProgress())
		if !strings.Contains(m.View(), "All invitations sent") {
			t.Errorf("expected progress message in view:\n%s", m.View())
		}

		close(ch)
		run(t, m, m.waitForProgress())
		if m.progressChan != nil {
			t.Error("expected closed channel to be dropped")
		}
		if m.waitForProgress() != nil {
			t.Error("expected no wait command without a channel")
		}
	})

	t.Run("quit", func(t *testing.T) {
		m := NewModel(ctx, Opts{Source: newFakeSource()})
		_, cmd := m.Update(runeKey('q'))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}

func TestOperationItem(t *testing.T) {
	op := testStatus()
	item := operationItem{op: op}

	if item.Title() != "Book club [inviting]" {
		t.Errorf("unexpected title %q", item.Title())
	}
	if item.Description() != "15/48 invited (31%) • 0 joined" {
		t.Errorf("unexpected description %q", item.Description())
	}

	op.RequestedName = ""
	op.Archived = true
	if !strings.HasPrefix(item.Title(), op.SourceGroupID) || !strings.HasSuffix(item.Description(), "archived") {
		t.Errorf("unexpected item %q / %q", item.Title(), item.Description())
	}
}
