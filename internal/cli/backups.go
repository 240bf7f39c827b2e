package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/selfmod"
)

// AddBackupsCommand adds the backups command group to the root command.
func AddBackupsCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List and prune self-modification backups",
	}
	cmd.AddCommand(newBackupsListCmd(), newBackupsPruneCmd())
	parent.AddCommand(cmd)
}

func newBackupsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backup snapshot sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return runBackupsList(a.engine.Backups(), cmd.OutOrStdout(), outputFormat(cmd))
		},
	}
}

func runBackupsList(store *selfmod.BackupStore, w io.Writer, output string) error {
	backups, err := store.List()
	if err != nil {
		return err
	}
	if output == OutputJSON {
		return writeJSON(w, backups)
	}
	if len(backups) == 0 {
		_, _ = fmt.Fprintln(w, "No backups.")
		return nil
	}
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "CREATED\tID\tFILES")
	for _, b := range backups {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", formatTime(b.CreatedAt), b.ID, len(b.Snapshots))
	}
	return tw.Flush()
}

func newBackupsPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove backups older than a retention period",
		Long: `Remove backup snapshot sets older than --older-than. The set an
interrupted modification depends on is always kept. The default is
selfmod.backup_retention.

Examples:
  overseer backups prune
  overseer backups prune --older-than 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if !cmd.Flags().Changed("older-than") {
				olderThan = a.cfg.SelfMod.BackupRetention
			}
			if olderThan <= 0 {
				return overseererrors.NewUsageError(fmt.Errorf("%w: --older-than must be positive", overseererrors.ErrInvalidArgument))
			}
			return runBackupsPrune(cmd.Context(), a.engine, cmd.OutOrStdout(), outputFormat(cmd), olderThan)
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age above which backups are removed")
	return cmd
}

type pruneReport struct {
	Removed   int    `json:"removed"`
	OlderThan string `json:"older_than"`
}

func runBackupsPrune(ctx context.Context, engine *selfmod.Engine, w io.Writer, output string, olderThan time.Duration) error {
	n, err := engine.PruneBackups(ctx, olderThan)
	if err != nil {
		return err
	}
	if output == OutputJSON {
		return writeJSON(w, pruneReport{Removed: n, OlderThan: olderThan.String()})
	}
	_, _ = fmt.Fprintf(w, "Removed %d backup(s) older than %s.\n", n, olderThan)
	return nil
}
