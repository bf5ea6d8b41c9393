package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/switchyard/internal/presentation/tui"
)

// printJSON writes v indented.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printMarkdown renders md for the terminal, or writes it as is when
// stdout is redirected.
func printMarkdown(w io.Writer, md string) error {
	out, err := tui.NewRenderer(os.Stdout).Render(md)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}

// readInput reads a file, or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
