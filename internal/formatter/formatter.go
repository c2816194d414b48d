// package formatter renders migration operations as reports (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/desertthunder/regroup/internal/models"
)

// Member states used in reports.
const (
	MemberJoined   = "joined"
	MemberInvited  = "invited"
	MemberRejected = "rejected"
	MemberPending  = "pending"
	MemberExcluded = "excluded"
)

// MemberRow is one participant of an operation with its outcome.
type MemberRow struct {
	Participant string
	State       string
	Detail      string // rejection label
}

// Members lists every planned participant in planning order followed by the excluded ones.
func Members(op *models.Operation) []MemberRow {
	rows := make([]MemberRow, 0, len(op.MembersToInvite)+len(op.ExcludedIDs))
	for _, m := range op.MembersToInvite {
		row := MemberRow{Participant: m, State: MemberPending}
		switch {
		case op.JoinedMembers.Has(m):
			row.State = MemberJoined
		case op.InvitedMembers.Has(m):
			row.State = MemberInvited
		default:
			if label, ok := op.RejectedMembers[m]; ok {
				row.State = MemberRejected
				row.Detail = label
			}
		}
		rows = append(rows, row)
	}
	for _, m := range op.ExcludedIDs.Slice() {
		rows = append(rows, MemberRow{Participant: m, State: MemberExcluded})
	}
	return rows
}

// ExportToCSV converts an operation to CSV with columns: Participant, State, Detail
func ExportToCSV(op *models.Operation) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Participant", "State", "Detail"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, row := range Members(op) {
		if err := writer.Write([]string{row.Participant, row.State, row.Detail}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts an operation and its batches to a Markdown report
func ExportToMarkdown(op *models.Operation, batches []*models.Batch) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", title(op))

	fmt.Fprintf(&buf, "**Operation**: %s\n", op.ID)
	fmt.Fprintf(&buf, "**Status**: %s\n", op.Status)
	fmt.Fprintf(&buf, "**Source group**: %s\n", op.SourceGroupID)
	if op.TargetGroupID != "" {
		fmt.Fprintf(&buf, "**Target group**: %s\n", op.TargetGroupID)
	}
	fmt.Fprintf(&buf, "**Started**: %s\n", op.StartTime.UTC().Format(time.RFC3339))
	if op.CompletedAt != nil {
		fmt.Fprintf(&buf, "**Completed**: %s (%s)\n", op.CompletedAt.UTC().Format(time.RFC3339), FormatElapsed(op.CompletedAt.Sub(op.StartTime)))
	}
	if op.Error != "" {
		fmt.Fprintf(&buf, "**Error**: %s\n", op.Error)
	}

	buf.WriteString("\n## Progress\n\n")
	buf.WriteString("| Planned | Invited | Joined | Rejected | Pending | Excluded | Progress | Joined % |\n")
	buf.WriteString("|---|---|---|---|---|---|---|---|\n")
	fmt.Fprintf(&buf, "| %d | %d | %d | %d | %d | %d | %d%% | %d%% |\n",
		len(op.MembersToInvite), len(op.InvitedMembers), len(op.JoinedMembers), len(op.RejectedMembers),
		len(op.Pending()), len(op.ExcludedIDs), op.MigrationProgress, op.JoinPercentage())

	if len(batches) > 0 {
		buf.WriteString("\n## Batches\n\n")
		for i, b := range batches {
			sent := "not sent"
			if b.SentAt != nil {
				sent = b.SentAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(&buf, "%d. %s: %d of %d added [%s]\n", i+1, b.Status, b.Added, len(b.Members), sent)
		}
	}

	if len(op.RejectedMembers) > 0 {
		buf.WriteString("\n## Rejected\n\n")
		for _, row := range Members(op) {
			if row.State == MemberRejected {
				fmt.Fprintf(&buf, "- %s (%s)\n", row.Participant, row.Detail)
			}
		}
	}

	buf.WriteString("\n## Log\n\n")
	for _, entry := range op.Messages {
		fmt.Fprintf(&buf, "- `%s` %s\n", entry.Time.UTC().Format(time.RFC3339), entry.Message)
	}

	return buf.Bytes(), nil
}

// ExportToText renders an operation snapshot as plain text
func ExportToText(status *models.OperationStatus) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Operation: %s\n", status.ID)
	fmt.Fprintf(&buf, "Status: %s", status.Status)
	if status.Archived {
		buf.WriteString(" (archived)")
	}
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "Source: %s\n", status.SourceGroupID)
	if status.TargetGroupID != "" {
		fmt.Fprintf(&buf, "Target: %s\n", status.TargetGroupID)
	}
	fmt.Fprintf(&buf, "Invited: %d/%d (%d%%)\n", status.Invited, status.TotalToInvite, status.MigrationProgress)
	fmt.Fprintf(&buf, "Joined: %d/%d (%d%%)\n", status.Joined, status.Invited, status.JoinPercentage)
	fmt.Fprintf(&buf, "Rejected: %d  Pending: %d  Excluded: %d\n", status.Rejected, status.Pending, status.Excluded)
	if status.Error != "" {
		fmt.Fprintf(&buf, "Error: %s\n", status.Error)
	}

	if len(status.RecentMessages) > 0 {
		buf.WriteString("\n")
		for _, entry := range status.RecentMessages {
			fmt.Fprintf(&buf, "%s  %s\n", entry.Time.UTC().Format(time.DateTime), entry.Message)
		}
	}

	return buf.Bytes(), nil
}

// ExportListToText renders one line per operation snapshot
func ExportListToText(ops []*models.OperationStatus) []byte {
	var buf bytes.Buffer
	if len(ops) == 0 {
		buf.WriteString("No operations\n")
		return buf.Bytes()
	}

	for _, op := range ops {
		archived := ""
		if op.Archived {
			archived = " archived"
		}
		fmt.Fprintf(&buf, "%s  %-14s %3d%%  %d/%d invited  %d joined  %s%s\n",
			op.ID, op.Status, op.MigrationProgress, op.Invited, op.TotalToInvite, op.Joined, op.SourceGroupID, archived)
	}
	return buf.Bytes()
}

// ToJSON marshals v as indented JSON with a trailing newline
func ToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// FormatElapsed formats a duration as H:MM:SS, or M:SS under an hour
func FormatElapsed(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	if secs < 0 {
		secs = 0
	}
	h, m, s := secs/3600, secs%3600/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func title(op *models.Operation) string {
	if op.RequestedName != "" {
		return op.RequestedName
	}
	return "Migration " + op.ID
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	MembersFile   string
	OperationFile string
}

// WriteCSVExport writes {base}_members.csv and {base}_operation.json.
//
// Defaults to the operation ID as the base filename.
func WriteCSVExport(op *models.Operation, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = op.ID
	}

	csvData, err := ExportToCSV(op)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	membersFile := baseFilepath + "_members.csv"
	if err := os.WriteFile(membersFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	opJSON, err := ToJSON(op)
	if err != nil {
		return nil, fmt.Errorf("failed to generate operation JSON: %w", err)
	}

	operationFile := baseFilepath + "_operation.json"
	if err := os.WriteFile(operationFile, opJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write operation file: %w", err)
	}

	return &CSVExportResult{MembersFile: membersFile, OperationFile: operationFile}, nil
}

// WriteMarkdownExport writes {dir}/README.md. The directory defaults to the operation ID.
func WriteMarkdownExport(op *models.Operation, batches []*models.Batch, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = op.ID
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	mdData, err := ExportToMarkdown(op, batches)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return mdFile, nil
}

// WriteTextExport writes the plain text status of an operation. Defaults to {id}_status.txt.
func WriteTextExport(status *models.OperationStatus, path string) (string, error) {
	if path == "" {
		path = status.ID + "_status.txt"
	}

	textData, err := ExportToText(status)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}
	return path, nil
}

// Summary returns a one-line progress summary.
func Summary(status *models.OperationStatus) string {
	return fmt.Sprintf("%s %d/%d invited, %d joined", status.Status, status.Invited, status.TotalToInvite, status.Joined)
}
