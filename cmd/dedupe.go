package cmd

import (
	"fmt"

	"github.com/li-blockchain/rewards-collector/internal/config"
	"github.com/li-blockchain/rewards-collector/pkg/ledger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Remove duplicate records from the ledger",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.NewConfig()
		l := newLogger(cfg, true)

		if err := cfg.Validate(); err != nil {
			l.Sugar().Fatalw("Invalid configuration", zap.Error(err))
		}

		noBackup, _ := cmd.Flags().GetBool("no-backup")

		ls := ledger.NewLedgerStore(cfg.LedgerPath(), l)
		res, err := ls.Deduplicate(!noBackup)
		if err != nil {
			l.Sugar().Fatalw("Failed to deduplicate ledger", zap.Error(err))
		}

		fmt.Printf("Records before: %d\nRecords after: %d\nDuplicates removed: %d\n", res.Before, res.After, res.Removed)
		if res.BackupPath != "" {
			fmt.Printf("Backup: %s\n", res.BackupPath)
		}
	},
}

func init() {
	dedupeCmd.Flags().Bool("no-backup", false, "Do not copy the ledger before rewriting it")
}
