package formatter

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/regroup/internal/models"
	th "github.com/desertthunder/regroup/internal/testing"
)

func testOperation() *models.Operation {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	done := start.Add(90 * time.Minute)
	members := th.Participants(5)

	op := &models.Operation{
		ID:              "op-1",
		SourceGroupID:   "120363111111111111@g.us",
		TargetGroupID:   "120363999999999999@g.us",
		RequestedName:   "Book club",
		Status:          models.StatusCompleted,
		StartTime:       start,
		CompletedAt:     &done,
		ExcludedIDs:     models.NewParticipantSet(th.Participant(9)),
		MembersToInvite: members,
		InvitedMembers:  models.NewParticipantSet(members[0], members[1], members[2]),
		JoinedMembers:   models.NewParticipantSet(members[0]),
		RejectedMembers: map[string]string{members[3]: "privacy_blocked"},
		Messages: []models.LogEntry{
			{Time: start, Message: "Migration started: 5 members to invite, 1 excluded"},
			{Time: done, Message: "Migration completed: closed by operator"},
		},
	}
	op.RecomputeProgress()
	return op
}

func TestMembers(t *testing.T) {
	op := testOperation()
	rows := Members(op)

	want := []string{MemberJoined, MemberInvited, MemberInvited, MemberRejected, MemberPending, MemberExcluded}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i, row := range rows {
		if row.State != want[i] {
			t.Errorf("row %d: expected %s, got %s", i, want[i], row.State)
		}
	}
	if rows[3].Detail != "privacy_blocked" {
		t.Errorf("expected rejection detail, got %q", rows[3].Detail)
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(testOperation())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.HasPrefix(output, "Participant,State,Detail\n") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, th.Participant(4)+",rejected,privacy_blocked") {
			t.Errorf("CSV missing rejected member, got: %s", output)
		}
		if !strings.Contains(output, th.Participant(9)+",excluded,") {
			t.Errorf("CSV missing excluded member, got: %s", output)
		}
		if lines := strings.Count(output, "\n"); lines != 7 {
			t.Errorf("expected 7 lines, got %d", lines)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		op := testOperation()
		sent := op.StartTime.Add(time.Minute)
		batches := []*models.Batch{
			{ID: "b1", OperationID: op.ID, Members: op.MembersToInvite, Status: models.BatchSent, SentAt: &sent, Added: 3},
		}

		data, err := ExportToMarkdown(op, batches)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Book club",
			"**Status**: completed",
			"**Completed**: 2025-03-01T13:30:00Z (1:30:00)",
			"| 5 | 3 | 1 | 1 | 1 | 1 | 60% | 33% |",
			"1. sent: 3 of 5 added [2025-03-01T12:01:00Z]",
			"## Rejected",
			"- " + th.Participant(4) + " (privacy_blocked)",
			"Migration completed: closed by operator",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown without name or batches", func(t *testing.T) {
		op := testOperation()
		op.RequestedName = ""
		op.RejectedMembers = nil

		data, err := ExportToMarkdown(op, nil)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		if !strings.HasPrefix(output, "# Migration op-1") {
			t.Errorf("unexpected title: %s", output)
		}
		if strings.Contains(output, "## Batches") || strings.Contains(output, "## Rejected") {
			t.Errorf("unexpected sections: %s", output)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		status := testOperation().Snapshot(10, true)

		data, err := ExportToText(status)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"Status: completed (archived)",
			"Invited: 3/5 (60%)",
			"Joined: 1/3 (33%)",
			"Rejected: 1  Pending: 1  Excluded: 1",
			"2025-03-01 12:00:00  Migration started",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("text missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportListToText", func(t *testing.T) {
		if got := string(ExportListToText(nil)); got != "No operations\n" {
			t.Errorf("unexpected empty list: %q", got)
		}

		output := string(ExportListToText([]*models.OperationStatus{testOperation().Snapshot(0, true)}))
		if !strings.Contains(output, "op-1") || !strings.HasSuffix(output, "archived\n") {
			t.Errorf("unexpected list: %q", output)
		}
	})

	t.Run("ToJSON", func(t *testing.T) {
		data, err := ToJSON(testOperation())
		if err != nil {
			t.Fatalf("ToJSON failed: %v", err)
		}

		var decoded models.Operation
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.ID != "op-1" || len(decoded.InvitedMembers) != 3 {
			t.Errorf("unexpected decoded operation: %+v", decoded)
		}
	})
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{-time.Second, "0:00"},
		{59 * time.Second, "0:59"},
		{61 * time.Second, "1:01"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatElapsed(tt.in); got != tt.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSummary(t *testing.T) {
	got := Summary(testOperation().Snapshot(0, false))
	if got != "completed 3/5 invited, 1 joined" {
		t.Errorf("unexpected summary: %q", got)
	}
}

func TestWriters(t *testing.T) {
	t.Run("WriteCSVExport", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "report")

		result, err := WriteCSVExport(testOperation(), base)
		if err != nil {
			t.Fatalf("WriteCSVExport failed: %v", err)
		}

		th.AssertFileExists(t, result.MembersFile)
		th.AssertFileExists(t, result.OperationFile)

		if !strings.Contains(th.MustReadFile(t, result.MembersFile), "Participant,State,Detail") {
			t.Error("members file missing header")
		}
		if !strings.Contains(th.MustReadFile(t, result.OperationFile), `"sourceGroupId"`) {
			t.Error("operation file missing fields")
		}
	})

	t.Run("WriteCSVExport with default path", func(t *testing.T) {
		t.Chdir(t.TempDir())

		result, err := WriteCSVExport(testOperation(), "")
		if err != nil {
			t.Fatalf("WriteCSVExport failed: %v", err)
		}
		if result.MembersFile != "op-1_members.csv" {
			t.Errorf("unexpected file name %s", result.MembersFile)
		}
		th.AssertFileExists(t, result.MembersFile)
	})

	t.Run("WriteMarkdownExport", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "report")

		path, err := WriteMarkdownExport(testOperation(), nil, dir)
		if err != nil {
			t.Fatalf("WriteMarkdownExport failed: %v", err)
		}

		th.AssertDirExists(t, dir)
		th.AssertFileExists(t, path)
		if !strings.Contains(th.MustReadFile(t, path), "# Book club") {
			t.Error("README missing title")
		}
	})

	t.Run("WriteTextExport", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "status.txt")

		got, err := WriteTextExport(testOperation().Snapshot(10, false), path)
		if err != nil {
			t.Fatalf("WriteTextExport failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
		th.AssertFileExists(t, path)
	})

	t.Run("WriteTextExport to a missing directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "status.txt")

		if _, err := WriteTextExport(testOperation().Snapshot(10, false), path); err == nil {
			t.Error("expected error")
		}
	})
}
