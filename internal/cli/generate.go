package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/pipeline"
)

// generateCommand creates the generate command.
func (c *CLI) generateCommand() *cobra.Command {
	var flags generateFlags

	cmd := &cobra.Command{
		Use:   "generate [repo]",
		Short: "Analyze a repository and write an evidence pack",
		Long: `Analyze the repository at [repo] (default: current directory) and write an
evidence pack to the output directory.

Configuration is read from evidencepack.toml in the repository (or --config),
then the environment and the dotenv file, then flags. Credentials such as
SNYK_TOKEN, GEMINI_API_KEY and EVIDENCEPACK_UPLOAD_TOKEN are best passed
through the environment.

Analyzer failures never stop the run; they are recorded in the pack.`,
		Example: `  # Generate a pack for the current directory
  evidencepack generate

  # Skip the security scan and upload the pack
  evidencepack generate ./service --disable vulnerabilities --upload-url https://evidence.example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := "."
			if len(args) == 1 {
				repo = args[0]
			}
			return c.runGenerate(cmd, repo, &flags)
		},
	}
	flags.register(cmd)

	return cmd
}

func (c *CLI) runGenerate(cmd *cobra.Command, repo string, flags *generateFlags) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	cfg, err := c.loadConfig(cmd, repo, flags)
	if err != nil {
		return err
	}

	runner := c.runner(cmd, cfg)
	defer runner.Close()

	prog := newProgress(logger)
	result, err := runner.Run(ctx, cfg)
	if result == nil {
		return err
	}
	prog.done("Evidence pack generated", "files", len(result.Manifest.Entries))

	w := cmd.OutOrStdout()
	printResult(w, result)
	if err != nil {
		printNewline(w)
		printWarning(w, "Upload failed; the pack is still valid on disk")
		printDetail(w, "%s", errors.UserMessage(err))
		return err
	}
	return nil
}

// runner returns the pipeline runner for cfg.
func (c *CLI) runner(cmd *cobra.Command, cfg config.Config) *pipeline.Runner {
	if c.NewRunner != nil {
		return c.NewRunner(cfg)
	}
	return c.newRunner(cmd.Context(), cfg)
}

func printResult(w io.Writer, result *pipeline.Result) {
	printSuccess(w, "Evidence pack written")
	printFile(w, result.Manifest.Dir)

	summary := result.Model.Summary()
	printNewline(w)
	printKeyValue(w, "Repository", summary.Repository.Name)
	printKeyValue(w, "Commit", summary.Repository.CommitSHA)
	if summary.TechStack.Runtime != "" {
		printKeyValue(w, "Runtime", summary.TechStack.Runtime)
	}
	printKeyValue(w, "Files", StyleHighlight.Render(strconv.Itoa(len(result.Manifest.Entries))))
	printKeyValue(w, "Digest", result.Manifest.Digest)
	printKeyValue(w, "Score", fmt.Sprintf("%s (%.1f/100)", StyleHighlight.Render(summary.Scores.Grade), summary.Scores.FinalScore))

	printNewline(w)
	for _, a := range summary.Analyzers {
		line := statusStyle(string(a.Status)).Render(string(a.Status))
		if a.Reason != "" {
			line += " " + StyleDim.Render(a.Reason)
		}
		printKeyValue(w, a.Name, line)
	}
	printDetail(w, "%s", analysis.Summary(result.Model.Results))

	if result.Upload != nil {
		printNewline(w)
		printSuccess(w, "Uploaded via %s (%s)", result.Upload.Target, result.Upload.Method)
		if result.Upload.PublishedURL != "" {
			printFile(w, StyleLink.Render(result.Upload.PublishedURL))
		}
	}
	printNewline(w)
	printDetail(w, "Verify with: %s verify %s", appName, filepath.Clean(result.Manifest.Dir))
}
