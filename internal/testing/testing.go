// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/desertthunder/regroup/internal/services"
)

// Call records one request made to a [FakeClient].
type Call struct {
	Method       string
	GroupID      string
	Name         string
	Participants []string
	Action       services.Action
}

// FakeClient is a thread-safe test double for [services.Client] and [services.GroupDirectory].
//
// Participants report status "200" unless Codes maps them to another code.
type FakeClient struct {
	mu sync.Mutex

	GroupID    string            // id returned by CreateGroup; generated when empty
	CreateErr  error             // returned by CreateGroup
	AddErr     error             // returned by UpdateParticipants for ActionAdd
	PromoteErr error             // returned by UpdateParticipants for ActionPromote
	Codes      map[string]string // participant → platform status code
	Omit       map[string]bool   // participants left out of results
	Groups     map[string]*services.GroupInfo

	calls  []Call
	groups int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{Codes: map[string]string{}, Omit: map[string]bool{}, Groups: map[string]*services.GroupInfo{}}
}

func (f *FakeClient) CreateGroup(_ context.Context, name string, participants []string) (*services.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Method: "CreateGroup", Name: name, Participants: slices.Clone(participants)})
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	id := f.GroupID
	if id == "" {
		f.groups++
		id = fmt.Sprintf("1203630000%d@g.us", f.groups)
	}
	return &services.Group{ID: id, Subject: name, Participants: slices.Clone(participants)}, nil
}

func (f *FakeClient) UpdateParticipants(_ context.Context, groupID string, participants []string, action services.Action) ([]services.ParticipantResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Method: "UpdateParticipants", GroupID: groupID, Participants: slices.Clone(participants), Action: action})

	switch {
	case action == services.ActionAdd && f.AddErr != nil:
		return nil, f.AddErr
	case action == services.ActionPromote && f.PromoteErr != nil:
		return nil, f.PromoteErr
	}

	results := make([]services.ParticipantResult, 0, len(participants))
	for _, p := range participants {
		if f.Omit[p] {
			continue
		}
		code := "200"
		if c, ok := f.Codes[p]; ok {
			code = c
		}
		results = append(results, services.ParticipantResult{ParticipantID: p, Status: services.ParseParticipantStatus(code)})
	}
	return results, nil
}

func (f *FakeClient) GroupInfo(_ context.Context, groupID string) (*services.GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Method: "GroupInfo", GroupID: groupID})
	info, ok := f.Groups[groupID]
	if !ok {
		return nil, errors.New("group not found")
	}
	return info, nil
}

// SetCode sets the status code returned for participant.
func (f *FakeClient) SetCode(participant, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Codes[participant] = code
}

// SetAddErr changes the error returned for ActionAdd.
func (f *FakeClient) SetAddErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AddErr = err
}

// Calls returns a copy of every recorded call.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsFor returns the UpdateParticipants calls made with action.
func (f *FakeClient) CallsFor(action services.Action) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == "UpdateParticipants" && c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

// Participants returns n distinct normalized participant ids.
func Participants(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = Participant(i + 1)
	}
	return out
}

// Participant returns the normalized id of the i-th test participant.
func Participant(i int) string {
	return fmt.Sprintf("1555000%04d@s.whatsapp.net", i)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Expected file %s to exist", path)
		return
	}
	if err == nil && info.IsDir() {
		t.Errorf("Expected %s to be a file, got a directory", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Expected directory %s to exist", path)
		return
	}
	if err == nil && !info.IsDir() {
		t.Errorf("Expected %s to be a directory", path)
	}
}
