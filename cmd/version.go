package cmd

import (
	"fmt"

	"github.com/li-blockchain/rewards-collector/internal/version"
	"github.com/spf13/cobra"
)

var runVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of the rewards collector",
	Run: func(cmd *cobra.Command, args []string) {
		v := version.GetVersion()
		commit := version.GetCommit()

		fmt.Printf("Version: %s\nCommit: %s\n", v, commit)
	},
}
