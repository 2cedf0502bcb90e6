package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

// Output format constants
const (
	outputAuto = "auto"
	outputJSON = "json"
	outputText = "text"
)

var (
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	answerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
)

// textRenderer is implemented by results that have a human readable form.
type textRenderer interface {
	renderText(w io.Writer) error
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// resolveFormat turns the --output flag into json or text. Auto picks text
// for terminals and JSON otherwise.
func resolveFormat(cmd *cobra.Command) (string, error) {
	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", fmt.Errorf("failed to get output flag: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case outputJSON:
		return outputJSON, nil
	case outputText:
		return outputText, nil
	case outputAuto, "":
		if isTerminal(cmd.OutOrStdout()) {
			return outputText, nil
		}
		return outputJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// writeResult prints data in the format selected for cmd.
func writeResult(cmd *cobra.Command, data any) error {
	format, err := resolveFormat(cmd)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if renderer, ok := data.(textRenderer); ok && format == outputText {
		return renderer.renderText(w)
	}
	return writeJSON(w, data, isTerminal(w))
}

func writeJSON(w io.Writer, data any, color bool) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	out := pretty.Pretty(raw)
	if color {
		out = pretty.Color(out, nil)
	}
	_, err = w.Write(out)
	return err
}

func writeField(w io.Writer, label string, value any) error {
	_, err := fmt.Fprintf(w, "%s %v\n", labelStyle.Render(label+":"), value)
	return err
}
