package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/HyphaGroup/codexd/internal/backup"
	"github.com/HyphaGroup/codexd/internal/store"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot, list and restore the history database",
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
}

// openBackups opens the history store and a manager over the configured
// backup directory. The caller closes the store.
func openBackups() (*backup.Manager, *store.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	history, err := store.NewStore(cfg.Paths.DataDir)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := backup.New(backup.Config{
		Source:    history,
		BackupDir: cfg.History.Backup.Directory,
		Retention: cfg.History.Backup.Retention,
	})
	if err != nil {
		_ = history.Close()
		return nil, nil, err
	}
	return mgr, history, nil
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write a compressed snapshot of history.db",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, history, err := openBackups()
		if err != nil {
			return err
		}
		defer func() { _ = history.Close() }()

		snap, err := mgr.Snapshot(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%d bytes) in %s\n", snap.Filename, snap.SizeBytes, mgr.Dir())
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List history snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, history, err := openBackups()
		if err != nil {
			return err
		}
		defer func() { _ = history.Close() }()

		snaps, err := mgr.ListSnapshots()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Printf("No snapshots in %s.\n", mgr.Dir())
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "FILE\tTAKEN\tSIZE")
		for _, s := range snaps {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", s.Filename, s.Timestamp.Local().Format("2006-01-02 15:04:05"), s.SizeBytes)
		}
		return w.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot> <dest.db>",
	Short: "Decompress a snapshot to a new database file",
	Long: `Decompress a snapshot to a new database file. The destination must not exist;
stop the server and move the file over history.db to roll back.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, history, err := openBackups()
		if err != nil {
			return err
		}
		defer func() { _ = history.Close() }()

		if err := mgr.Restore(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Restored %s to %s\n", args[0], args[1])
		return nil
	},
}
