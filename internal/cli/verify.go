package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/pack"
)

// verifyCommand creates the verify command.
func (c *CLI) verifyCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify <pack-dir>",
		Short: "Check an evidence pack against its SHA256SUMS",
		Long: `Recompute the SHA-256 of every file listed in SHA256SUMS. Missing, modified
and unlisted files are reported and the command exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			report, err := pack.Verify(args[0])
			if report == nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return encErr
				}
				return err
			}

			if report.OK() {
				printSuccess(w, "Pack verified: %d files", report.Files)
				printKeyValue(w, "Digest", report.Digest)
				return nil
			}
			printError(w, "Pack failed verification: %d problems", len(report.Problems))
			for _, p := range report.Problems {
				printKeyValue(w, p.Kind, p.Path)
			}
			if err == nil {
				err = errors.New(errors.ErrCodeIntegrity, "pack failed verification")
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	return cmd
}
