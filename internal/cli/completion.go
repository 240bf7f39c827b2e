package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// AddCompletionCommand replaces cobra's default completion command with one
// whose shell is an argument.
func AddCompletionCommand(rootCmd *cobra.Command) {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	cmd := &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Generate shell completions",
		Long: `Generate a shell completion script for overseer.

To load completions in the current session:
  source <(overseer completion bash)
  source <(overseer completion zsh)
  overseer completion fish | source
  overseer completion powershell | Out-String | Invoke-Expression`,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.ExactArgs(1),
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, out := cmd.Root(), cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			default:
				return overseererrors.NewUsageError(fmt.Errorf("%w: unsupported shell %q (supported: bash, zsh, fish, powershell)",
					overseererrors.ErrInvalidArgument, args[0]))
			}
		},
	}
	rootCmd.AddCommand(cmd)
}
