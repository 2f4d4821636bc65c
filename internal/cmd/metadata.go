package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Custos/imthedev-sub000/internal/executor"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata [file]",
	Short: "Extract SuperClaude metadata from command output",
	Long: `Metadata reads captured command output from a file, or from stdin when no
file is given, and prints the annotations it finds: framework version,
personas, flags, MCP servers, thinking depth, performance figures,
suggestions and warnings.

Examples:
  imthedev metadata build.log
  claude implement auth | imthedev metadata -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMetadata,
}

var metadataFormat string

func init() {
	rootCmd.AddCommand(metadataCmd)

	metadataCmd.Flags().StringVarP(&metadataFormat, "output", "o", formatJSON, "Output format (json/yaml)")
}

func runMetadata(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read output: %w", err)
	}

	return writeFormatted(cmd.OutOrStdout(), metadataFormat, executor.ExtractMetadata(string(data)))
}

// writeFormatted encodes v as indented JSON or YAML.
func writeFormatted(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, formatJSON, formatYAML)
	}
}
