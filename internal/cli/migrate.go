package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-library-api/internal/repository"
	"github.com/noah-isme/sma-library-api/pkg/database"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	To     int
	Replay bool
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(root *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the database schema",
		Long: `Upgrade the database schema.

Without flags every pending step is applied. Steps are idempotent, so
--replay re-runs all of them against an already upgraded database.

Example:
  library migrate
  library migrate --to 2
  library migrate --replay --db ./data/library.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.To, "to", 0, fmt.Sprintf("target schema version (1-%d)", repository.LatestSchemaVersion))
	cmd.Flags().BoolVar(&opts.Replay, "replay", false, "re-run every step from version 1")

	return cmd
}

func runMigrate(cmd *cobra.Command, opts *MigrateOptions) error {
	db, err := database.Open(opts.cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	migrator := repository.NewMigrator(db, opts.logger)
	switch {
	case opts.Replay:
		err = migrator.Replay(ctx)
	case opts.To > 0:
		err = migrator.MigrateTo(ctx, opts.To)
	default:
		err = migrator.Up(ctx)
	}
	if err != nil {
		return err
	}

	version, err := migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
	return nil
}
