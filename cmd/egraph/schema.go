package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/elemgraph/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and validate schemas",
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate [path...]",
	Short: "Validate schema files",
	Long: `Load and merge schema files or directories and report problems.
With no paths the graph's configured schema is validated.`,
	RunE: runSchemaValidate,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show [path...]",
	Short: "Print the merged schema as JSON",
	RunE:  runSchemaShow,
}

func init() {
	schemaCmd.AddCommand(schemaValidateCmd)
	schemaCmd.AddCommand(schemaShowCmd)
}

func loadSchemaArgs(args []string) (*schema.Schema, error) {
	paths := args
	if len(paths) == 0 {
		paths = cfg.Graph.Schema
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no schema paths given and none configured in graph.schema")
	}
	return schema.Load(paths...)
}

func runSchemaValidate(cmd *cobra.Command, args []string) error {
	s, err := loadSchemaArgs(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Schema valid: %d entity groups, %d edge groups, %d types\n",
		len(s.EntityGroups()), len(s.EdgeGroups()), len(s.TypeNames()))
	for _, w := range s.Warnings() {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	return nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	s, err := loadSchemaArgs(args)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), s)
}
