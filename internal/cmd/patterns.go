package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Custos/imthedev-sub000/internal/config"
	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/executor"
	"github.com/Custos/imthedev-sub000/internal/learning"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Manage the learned pattern library",
	Long: `Patterns lists, shows, adds and removes the command sequences imthedev reuses
when a new objective matches a pattern's trigger.

The library lives at learning.patterns_file, by default patterns.yaml in
the config directory.`,
	RunE: runPatternsList,
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored patterns, most reliable first",
	RunE:  runPatternsList,
}

var patternsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a pattern",
	Long: `Add a command sequence to the library. A pattern with the same commands
is merged into the existing one.

Example:
  imthedev patterns add --name "auth workflow" --trigger "auth|login" \
    --command "/sc:implement auth --with-tests" --command "/sc:test auth"`,
	RunE: runPatternsAdd,
}

var patternsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one pattern in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternsShow,
}

var patternsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternsRemove,
}

var (
	patternName        string
	patternTrigger     string
	patternCommands    []string
	patternSuccessRate float64
	patternTags        []string
)

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsShowCmd)
	patternsCmd.AddCommand(patternsAddCmd)
	patternsCmd.AddCommand(patternsRemoveCmd)

	patternsAddCmd.Flags().StringVar(&patternName, "name", "", "Pattern name")
	patternsAddCmd.Flags().StringVar(&patternTrigger, "trigger", "", "Regular expression matched against objectives")
	patternsAddCmd.Flags().StringArrayVar(&patternCommands, "command", nil, "Command of the sequence (repeatable, in order)")
	patternsAddCmd.Flags().Float64Var(&patternSuccessRate, "success-rate", 1, "Initial success rate between 0 and 1")
	patternsAddCmd.Flags().StringSliceVar(&patternTags, "tag", nil, "Tag (repeatable)")
	_ = patternsAddCmd.MarkFlagRequired("name")
	_ = patternsAddCmd.MarkFlagRequired("trigger")
	_ = patternsAddCmd.MarkFlagRequired("command")
}

func openLibrary() (*learning.Library, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	lib := learning.NewLibrary(cfg.Learning.PatternsPath())
	if err := lib.Load(); err != nil {
		return nil, err
	}
	return lib, nil
}

func runPatternsList(cmd *cobra.Command, args []string) error {
	lib, err := openLibrary()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	patterns := lib.Patterns()
	if len(patterns) == 0 {
		fmt.Fprintf(out, "No patterns stored in %s\n", lib.Path())
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTRIGGER\tSUCCESS\tUSES\tCOMMANDS")
	for _, p := range patterns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%d\t%s\n",
			shortID(p.ID), p.Name, p.Trigger, p.SuccessRate*100, p.UsageCount, strings.Join(p.Commands, " → "))
	}
	return tw.Flush()
}

func runPatternsShow(cmd *cobra.Command, args []string) error {
	lib, err := openLibrary()
	if err != nil {
		return err
	}
	id, err := resolvePatternID(lib, args[0])
	if err != nil {
		return err
	}
	p, err := lib.Get(id)
	if err != nil {
		return err
	}

	lastUsed := "never"
	if p.LastUsed != nil {
		lastUsed = p.LastUsed.Format("2006-01-02 15:04:05")
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", p.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", p.Name)
	fmt.Fprintf(tw, "Trigger:\t%s\n", p.Trigger)
	fmt.Fprintf(tw, "Success rate:\t%.0f%%\n", p.SuccessRate*100)
	fmt.Fprintf(tw, "Uses:\t%d\n", p.UsageCount)
	fmt.Fprintf(tw, "Last used:\t%s\n", lastUsed)
	if len(p.Tags) > 0 {
		fmt.Fprintf(tw, "Tags:\t%s\n", strings.Join(p.Tags, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Commands:")
	for i, c := range p.Commands {
		fmt.Fprintf(out, "  %d. %s\n", i+1, c)
	}
	return nil
}

func runPatternsAdd(cmd *cobra.Command, args []string) error {
	for _, c := range patternCommands {
		if err := executor.Validate(c); err != nil {
			return fmt.Errorf("invalid command %q: %w", c, err)
		}
	}

	lib, err := openLibrary()
	if err != nil {
		return err
	}

	p := orchestration.NewPattern(patternName, patternTrigger, patternCommands)
	p.SuccessRate = patternSuccessRate
	p.Tags = patternTags

	stored, merged, err := lib.Add(p)
	if err != nil {
		return err
	}
	if merged {
		fmt.Fprintf(cmd.OutOrStdout(), "Merged into pattern %s (%s)\n", stored.ID, stored.Name)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Added pattern %s (%s)\n", stored.ID, stored.Name)
	}
	return nil
}

func runPatternsRemove(cmd *cobra.Command, args []string) error {
	lib, err := openLibrary()
	if err != nil {
		return err
	}

	id, err := resolvePatternID(lib, args[0])
	if err != nil {
		return err
	}
	if err := lib.Remove(id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed pattern %s\n", id)
	return nil
}

// resolvePatternID accepts a full ID or a unique prefix of one. A prefix
// matching nothing yields a *errors.NotFoundError.
func resolvePatternID(lib *learning.Library, prefix string) (string, error) {
	var found []string
	for _, p := range lib.Patterns() {
		if p.ID == prefix {
			return p.ID, nil
		}
		if strings.HasPrefix(p.ID, prefix) {
			found = append(found, p.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", errors.NewNotFoundError("pattern", prefix)
	case 1:
		return found[0], nil
	default:
		return "", errors.NewValidationError(fmt.Sprintf("id prefix is ambiguous (%d patterns)", len(found))).
			WithField("id").WithValue(prefix)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
