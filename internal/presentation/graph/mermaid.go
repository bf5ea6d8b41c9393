// Package graph draws the route table as a Mermaid flowchart.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Overlay marks pipelines a run tree touched.
type Overlay struct {
	VisitedPipelines []string
	CurrentPipeline  string
}

// GenerateMermaid produces a flowchart where pipelines are rectangles and
// response types are hexagons. producers maps a pipeline name to the
// response type it returns and draws the pipeline -> response edge. A route
// to a pipeline missing from producers is drawn dotted when producers is
// not nil.
func GenerateMermaid(routes []domain.Route, producers map[string]string, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	pipelines := map[string]bool{}
	types := map[string]bool{}
	for name, resp := range producers {
		pipelines[name] = true
		types[domain.SimpleTypeName(resp)] = true
	}
	for _, r := range routes {
		pipelines[r.Pipeline] = true
		types[domain.SimpleTypeName(r.ResponseType)] = true
	}

	for _, name := range sorted(pipelines) {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", pipelineID(name), name))
	}
	for _, name := range sorted(types) {
		sb.WriteString(fmt.Sprintf("    %s{{\"%s\"}}\n", typeID(name), name))
	}

	for _, name := range sorted(pipelines) {
		if resp, ok := producers[name]; ok {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", pipelineID(name), typeID(domain.SimpleTypeName(resp))))
		}
	}

	for _, r := range routes {
		from := typeID(domain.SimpleTypeName(r.ResponseType))
		to := pipelineID(r.Pipeline)
		_, known := producers[r.Pipeline]
		dangling := producers != nil && !known

		label := strings.ReplaceAll(r.Condition.String(), "\"", "'")
		arrow := fmt.Sprintf("-- \"%s\" -->", label)
		if dangling {
			arrow = fmt.Sprintf("-. \"%s\" .->", label)
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", from, arrow, to))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, name := range overlay.VisitedPipelines {
			id := pipelineID(name)
			if name != "" && !seen[id] {
				seen[id] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", id))
			}
		}
		if overlay.CurrentPipeline != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", pipelineID(overlay.CurrentPipeline)))
		}
	}

	return sb.String()
}

// OverlayFor marks the pipelines of a run and its children.
func OverlayFor(run *domain.RunState, children []domain.RunState) *Overlay {
	o := &Overlay{VisitedPipelines: []string{run.Pipeline}}
	if !run.Status.IsTerminal() {
		o.CurrentPipeline = run.Pipeline
	}
	for _, c := range children {
		o.VisitedPipelines = append(o.VisitedPipelines, c.Pipeline)
		if !c.Status.IsTerminal() {
			o.CurrentPipeline = c.Pipeline
		}
	}
	return o
}

func pipelineID(name string) string { return "p_" + sanitizeMermaidID(name) }
func typeID(name string) string     { return "t_" + sanitizeMermaidID(name) }

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
