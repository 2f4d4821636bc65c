package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Custos/imthedev-sub000/internal/executor"
)

var validateCmd = &cobra.Command{
	Use:   "validate <command>",
	Short: "Check a /sc: command against the command grammar",
	Long: `Validate checks that a command has the /sc: prefix, a known kind and
only known flags. Invalid commands are reported with suggested fixes.

Examples:
  imthedev validate "/sc:implement auth --with-tests"
  imthedev validate "implement auth"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	command := strings.Join(args, " ")

	err := executor.Validate(command)
	if err == nil {
		fmt.Fprintf(out, "valid: %s (%s)\n", command, executor.CommandKind(command))
		return nil
	}

	fmt.Fprintf(out, "invalid: %v\n", err)
	if fixes := executor.SuggestFixes(command); len(fixes) > 0 {
		fmt.Fprintln(out, "Suggested fixes:")
		for _, fix := range fixes {
			fmt.Fprintf(out, "  %s\n", fix)
		}
	}
	return err
}
