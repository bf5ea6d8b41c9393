package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/switchyard/pkg/domain"
)

// RoutesMarkdown renders routes as a table in registration order.
func RoutesMarkdown(routes []domain.Route) string {
	if len(routes) == 0 {
		return "_No routes configured._\n"
	}
	var sb strings.Builder
	sb.WriteString("| # | Response type | Condition | Pipeline | Request type |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for i, r := range routes {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n",
			i+1, cell(r.ResponseType), cell(r.Condition.String()), cell(r.Pipeline), cell(r.RequestType))
	}
	return sb.String()
}

// DispatchMarkdown renders the outcome of evaluating one response.
func DispatchMarkdown(responseType string, res domain.DispatchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Dispatches for `%s`\n\n", responseType)
	if len(res.Dispatches) == 0 {
		sb.WriteString("_No route matched._\n")
	}
	for _, d := range res.Dispatches {
		fmt.Fprintf(&sb, "- **%s** (%s) via `%s`\n", d.Pipeline, d.RequestType, d.Route.Condition)
	}
	if len(res.Errors) > 0 {
		sb.WriteString("\n### Errors\n\n")
		for _, e := range res.Errors {
			fmt.Fprintf(&sb, "- `%s` %s: %s\n", e.Code, e.Route.Pipeline, e.Message)
		}
	}
	return sb.String()
}

// RunsMarkdown renders a run listing.
func RunsMarkdown(runs []domain.RunState) string {
	if len(runs) == 0 {
		return "_No runs._\n"
	}
	var sb strings.Builder
	sb.WriteString("| Run | Pipeline | Status | Step | Attempt | Updated |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range runs {
		status := string(r.Status)
		if r.Interrupted {
			status += " (interrupted)"
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %d | %s |\n",
			cell(r.RunID), cell(r.Pipeline), status, cell(r.CurrentStep), r.Attempt,
			r.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return sb.String()
}

// RunMarkdown renders one run with its journal and dispatches.
func RunMarkdown(r *domain.RunState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run %s\n\n", r.RunID)
	fmt.Fprintf(&sb, "- **Pipeline:** %s\n", r.Pipeline)
	fmt.Fprintf(&sb, "- **Status:** %s\n", r.Status)
	fmt.Fprintf(&sb, "- **Step:** %s (attempt %d)\n", r.CurrentStep, r.Attempt)
	if r.ParentRunID != "" {
		fmt.Fprintf(&sb, "- **Parent:** %s\n", r.ParentRunID)
	}
	if r.LastError != "" {
		fmt.Fprintf(&sb, "- **Last error:** %s\n", r.LastError)
	}

	if len(r.Journal) > 0 {
		sb.WriteString("\n## Journal\n\n| Seq | Kind | Name | Outcome |\n|---|---|---|---|\n")
		for _, e := range r.Journal {
			outcome := "ok"
			if e.Error != "" {
				outcome = e.ErrorType + ": " + e.Error
			}
			fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n", e.Seq, e.Kind, cell(e.Name), cell(outcome))
		}
	}
	if len(r.Dispatches) > 0 || len(r.DispatchErrors) > 0 {
		sb.WriteString("\n## Dispatches\n\n")
		for _, d := range r.Dispatches {
			fmt.Fprintf(&sb, "- %s -> run `%s`\n", d.Pipeline, d.RunID)
		}
		for _, e := range r.DispatchErrors {
			fmt.Fprintf(&sb, "- %s failed: `%s` %s\n", e.Route.Pipeline, e.Code, e.Message)
		}
	}
	if len(r.Response) > 0 {
		fmt.Fprintf(&sb, "\n## Response\n\n```json\n%s\n```\n", r.Response)
	}
	return sb.String()
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
