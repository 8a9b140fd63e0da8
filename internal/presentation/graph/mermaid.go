package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Overlay marks actions that are currently running or queued.
type Overlay struct {
	Running []string
	Queued  []string
}

// GenerateMermaid produces a Mermaid flowchart of actions and the locks they declare.
// Shapes:
// - Action: [Rectangle]
// - Modal action: {{Hexagon}}
// - Lock: [(Cylinder)]
// Writes are solid edges, reads dotted, transfers thick.
func GenerateMermaid(actions []domain.Descriptor, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	lockSet := make(map[domain.Lock]bool)
	for _, a := range actions {
		for _, l := range a.Locks() {
			lockSet[l] = true
		}
	}
	lockNames := make([]string, 0, len(lockSet))
	for l := range lockSet {
		lockNames = append(lockNames, string(l))
	}
	sort.Strings(lockNames)
	for _, l := range lockNames {
		sb.WriteString(fmt.Sprintf("    %s[(\"%s\")]\n", lockID(l), l))
	}

	for _, a := range actions {
		safeID := sanitizeMermaidID(a.Name)
		opener, closer := "[", "]"
		if a.Modal {
			opener, closer = "{{", "}}"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, a.Name, closer))

		access := a.Access()
		for _, l := range a.Locks() {
			arrow := "-. r .->"
			if access[l] == domain.AccessWrite {
				arrow = "-- w -->"
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, lockID(string(l))))
		}
		for _, target := range a.Transfers {
			sb.WriteString(fmt.Sprintf("    %s ==> %s\n", safeID, sanitizeMermaidID(target)))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef queued fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef running fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		writeClass(&sb, overlay.Queued, "queued")
		writeClass(&sb, overlay.Running, "running")
	}

	return sb.String()
}

func writeClass(sb *strings.Builder, names []string, class string) {
	seen := make(map[string]bool)
	for _, name := range names {
		safeID := sanitizeMermaidID(name)
		if safeID == "" || seen[safeID] {
			continue
		}
		seen[safeID] = true
		sb.WriteString(fmt.Sprintf("    class %s %s;\n", safeID, class))
	}
}

func lockID(l string) string {
	return "lock_" + sanitizeMermaidID(l)
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
