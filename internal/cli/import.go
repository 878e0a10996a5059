package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-library-api/internal/app"
	"github.com/noah-isme/sma-library-api/internal/dto"
)

// NewImportCommand creates the import command.
func NewImportCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <books|students> <file.csv>",
		Short: "Bulk load books or students from CSV",
		Long: `Bulk load books or students from a CSV file.

Rows go through the same validation as the API. Rejected rows are listed
in the JSON report printed on completion and do not stop the import.`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"books", "students"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, root, args[0], args[1])
		},
	}
}

func runImport(cmd *cobra.Command, root *RootOptions, entity, path string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	application, err := app.New(ctx, root.cfg, root.logger)
	if err != nil {
		return err
	}
	defer application.Close()

	var load func(context.Context, io.Reader) (*dto.ImportReport, error)
	switch entity {
	case "books":
		load = application.Services.Imports.ImportBooks
	case "students":
		load = application.Services.Imports.ImportStudents
	default:
		return fmt.Errorf("unknown import entity %q: want books or students", entity)
	}

	report, err := load(ctx, file)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
