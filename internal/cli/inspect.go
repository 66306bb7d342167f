package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/evidence"
	"github.com/matzehuels/evidencepack/pkg/pack"
)

// packView is a pack loaded for display.
type packView struct {
	Dir     string
	Summary evidence.Summary
	Entries []pack.Entry
}

// loadPackView reads SHA256SUMS and summary.json from dir. Integrity is
// not checked; use verify for that.
func loadPackView(dir string) (*packView, error) {
	sums, err := os.ReadFile(filepath.Join(dir, pack.FileChecksums))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPack, err, "read %s", pack.FileChecksums)
	}
	entries, err := pack.ParseChecksums(sums)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		if st, err := os.Stat(filepath.Join(dir, filepath.FromSlash(e.Path))); err == nil {
			entries[i].Size = st.Size()
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, pack.FileSummary))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPack, err, "read %s", pack.FileSummary)
	}
	var summary evidence.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPack, err, "decode %s", pack.FileSummary)
	}
	return &packView{Dir: dir, Summary: summary, Entries: entries}, nil
}

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "inspect <pack-dir>",
		Short: "Browse an evidence pack",
		Long: `Browse the files of an evidence pack with a preview pane.
With --plain, or when stdout is not a terminal, print a static overview.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := loadPackView(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if plain || !isTerminal(w) {
				printOverview(w, view)
				return nil
			}
			p := tea.NewProgram(newInspectModel(view), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print a static overview instead of the browser")

	return cmd
}

// isTerminal reports whether w is a character device.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}

// printOverview prints the repository block and the analyzer and file tables.
func printOverview(w io.Writer, v *packView) {
	s := v.Summary
	fmt.Fprintln(w, StyleTitle.Render("Evidence pack "+s.EvidencePackVersion))
	printKeyValue(w, "Repository", s.Repository.Name)
	printKeyValue(w, "Commit", s.Repository.CommitSHA)
	printKeyValue(w, "Branch", s.Repository.Branch)
	printKeyValue(w, "Generated", s.GeneratedAt)
	printKeyValue(w, "Runtimes", strings.Join(s.TechStack.Runtimes, ", "))
	printKeyValue(w, "Docs", s.Documentation.Source)
	printNewline(w)

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	rows := make([][]string, 0, len(s.Analyzers))
	for _, a := range s.Analyzers {
		rows = append(rows, []string{a.Name, string(a.Status), a.Reason})
	}
	analyzers := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Analyzer", "Status", "Reason").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if col == 1 && row < len(rows) {
				return statusStyle(rows[row][1])
			}
			return lipgloss.NewStyle()
		})
	fmt.Fprintln(w, analyzers.Render())

	files := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("File", "Size", "SHA-256").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			return lipgloss.NewStyle()
		})
	for _, e := range v.Entries {
		files.Row(e.Path, formatSize(e.Size), e.SHA256[:12])
	}
	fmt.Fprintln(w, files.Render())
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
