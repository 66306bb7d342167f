package cli

import (
	"github.com/spf13/cobra"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for evidencepack.

To load completions:

Bash:
  $ source <(evidencepack completion bash)

  # Persist for every session (Linux):
  $ evidencepack completion bash > /etc/bash_completion.d/evidencepack

Zsh:
  # Requires compinit; persist for every session:
  $ evidencepack completion zsh > "${fpath[1]}/_evidencepack"

Fish:
  $ evidencepack completion fish | source

  # To load completions for each session, execute once:
  $ evidencepack completion fish > ~/.config/fish/completions/evidencepack.fish

PowerShell:
  PS> evidencepack completion powershell | Out-String | Invoke-Expression

`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			}
			return nil
		},
	}

	return cmd
}
