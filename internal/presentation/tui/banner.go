package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"

	"github.com/aretw0/switchyard/pkg/domain"
)

// PrintBanner writes the switchyard banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{"  ___ _    _ _  _ _ __ _  _ __ _ _ _ __| |", "#34d399"},
		{" (_-< \\/\\/ | || | '_ \\ || / _` | '_/ _` |", "#2dd4bf"},
		{" /__/\\_/\\_/ \\_, | .__/\\_, \\__,_|_| \\__,_|", "#22d3ee"},
		{"            |__/|_|   |__/", "#38bdf8"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  "+version).Faint())
	fmt.Fprintln(w)
}

// Status colours a pipeline status for output w.
func Status(w io.Writer, s domain.PipelineStatus) string {
	out := termenv.NewOutput(w)
	styled := out.String(string(s))
	switch s {
	case domain.StatusCompleted:
		styled = styled.Foreground(out.Color("2"))
	case domain.StatusFailed:
		styled = styled.Foreground(out.Color("1")).Bold()
	case domain.StatusRunning:
		styled = styled.Foreground(out.Color("3"))
	default:
		styled = styled.Faint()
	}
	return styled.String()
}
