package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
)

// Overlay marks the nodes a run visited and where it stopped.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string // Node that failed or was running, if any.
}

// OverlayFromRecord builds an overlay from a persisted run.
// A failed or unfinished run highlights the node of its last invocation.
func OverlayFromRecord(rec *domain.RunRecord) *Overlay {
	o := &Overlay{}
	for _, r := range rec.Trace {
		o.VisitedNodes = append(o.VisitedNodes, r.Node)
	}
	if rec.Status != domain.StatusCompleted && len(rec.Trace) > 0 {
		o.CurrentNode = rec.Trace[len(rec.Trace)-1].Node
	}
	return o
}

// GenerateMermaid renders g as a Mermaid flowchart.
// Shapes:
// - Entry: ((Circle))
// - Node with a router: {{Hexagon}}
// - Default: [Rectangle]
// The terminal marker is drawn once as a stadium. Overlay styles apply when o is not nil.
func GenerateMermaid(g *graph.Compiled, o *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	endUsed := false
	for _, name := range g.Nodes() {
		node, _ := g.Node(name)
		safeID := sanitizeMermaidID(name)

		opener, closer := "[", "]"
		switch {
		case name == g.Entry():
			opener, closer = "((", "))"
		case node.Branch != nil:
			opener, closer = "{{", "}}"
		}

		label := fmt.Sprintf("%s <br/> <i>%s</i>", name, node.Step)
		if node.Timeout > 0 {
			label += fmt.Sprintf(" <br/> ⏱️ %s", node.Timeout)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(label), closer)

		if node.Next != "" {
			endUsed = endUsed || node.Next == domain.End
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, targetID(node.Next))
		}
		if node.Branch != nil {
			for _, l := range node.Branch.Labels() {
				target := node.Branch.Routes[l]
				endUsed = endUsed || target == domain.End
				fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, escapeLabel(l), targetID(target))
			}
		}
	}
	if endUsed {
		sb.WriteString("    END([\"end\"])\n")
	}

	if o != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps labels readable on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range o.VisitedNodes {
			if _, ok := g.Node(id); !ok || seen[id] {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", sanitizeMermaidID(id))
		}
		if _, ok := g.Node(o.CurrentNode); ok {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(o.CurrentNode))
		}
	}

	return sb.String()
}

func targetID(name string) string {
	if name == domain.End {
		return "END"
	}
	return sanitizeMermaidID(name)
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	s := r.Replace(id)
	// "end" is a Mermaid keyword.
	if strings.EqualFold(s, "end") {
		s = "node_" + s
	}
	return s
}
