package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/registry"
)

var statusColors = map[domain.ExecutionStatus]string{
	domain.StatusCompleted: "#22c55e",
	domain.StatusFailed:    "#ef4444",
	domain.StatusCancelled: "#f59e0b",
	domain.StatusRunning:   "#3b82f6",
	domain.StatusPending:   "#9ca3af",
}

// Status returns the colored status label.
func (p *Printer) Status(s domain.ExecutionStatus) string {
	return p.out.String(string(s)).Foreground(p.out.Color(statusColors[s])).Bold().String()
}

// Report prints a run: header, one line per step invocation and the final state.
func (p *Printer) Report(rec *domain.RunRecord) {
	p.println(fmt.Sprintf("%s %s  run %s  %s",
		p.out.String("graph").Faint(), rec.Graph, rec.ID, p.Status(rec.Status)))
	if rec.Attempts > 1 {
		p.println(fmt.Sprintf("attempts: %d", rec.Attempts))
	}

	for _, r := range rec.Trace {
		p.println(p.stepLine(r))
	}

	if rec.Error != "" {
		p.println(p.out.String("error: " + rec.Error).Foreground(p.out.Color("#ef4444")).String())
	}

	p.println(fmt.Sprintf("%d steps in %s", len(rec.Trace), rec.Duration().Round(time.Millisecond)))
	if len(rec.State) > 0 {
		p.println(p.out.String("state").Bold().String())
		for _, k := range sortedKeys(rec.State) {
			p.println(fmt.Sprintf("  %s = %s", k, compact(rec.State[k])))
		}
	}
}

func (p *Printer) stepLine(r domain.StepRecord) string {
	mark := p.out.String("✓").Foreground(p.out.Color("#22c55e")).String()
	if r.Failed() {
		mark = p.out.String("✗").Foreground(p.out.Color("#ef4444")).String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%3d %s %s (%s) %s", r.Seq, mark, r.Node, r.Step, r.Duration.Round(time.Microsecond))
	if r.Route != "" {
		fmt.Fprintf(&b, " [%s]", r.Route)
	}
	if r.Next != "" {
		fmt.Fprintf(&b, " → %s", r.Next)
	}
	if r.Failed() {
		fmt.Fprintf(&b, ": %s", r.Error)
	}
	return b.String()
}

// StepsMarkdown lists registry entries as a markdown table.
func StepsMarkdown(entries []registry.Entry) string {
	var b strings.Builder
	b.WriteString("| Name | Kind | Category | Writes / Labels | Description |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, e := range entries {
		declared := strings.Join(e.Writes, ", ")
		if e.Kind == registry.KindRouter {
			declared = strings.Join(e.Labels, ", ")
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n", e.Name, e.Kind, e.Category, declared, e.Description)
	}
	return b.String()
}

// RunsMarkdown lists run records as a markdown table.
func RunsMarkdown(records []*domain.RunRecord) string {
	var b strings.Builder
	b.WriteString("| Run | Graph | Status | Steps | Started |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, r := range records {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %d | %s |\n",
			r.ID, r.Graph, r.Status, len(r.Trace), r.StartedAt.Format(time.RFC3339))
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func compact(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
