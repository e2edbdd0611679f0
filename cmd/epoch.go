package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/li-blockchain/rewards-collector/pkg/epochUtils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var epochCmd = &cobra.Command{
	Use:   "epoch",
	Short: "Convert between epochs, dates and rocket pool cycles",
}

var epochFromDateCmd = &cobra.Command{
	Use:   "from-date <RFC3339 date>",
	Short: "Print the epoch containing a date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := time.Parse(time.RFC3339, args[0])
		if err != nil {
			return errors.Wrap(err, "date must be RFC3339, e.g. 2024-01-01T00:00:00Z")
		}
		epoch, err := epochUtils.DateToEpoch(t)
		if err != nil {
			return err
		}
		fmt.Println(epoch)
		return nil
	},
}

var epochToDateCmd = &cobra.Command{
	Use:   "to-date <epoch>",
	Short: "Print the start time of an epoch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epoch, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid epoch '%s'", args[0])
		}
		fmt.Println(epochUtils.EpochToDate(epoch).Format(time.RFC3339))
		return nil
	},
}

var epochCycleCmd = &cobra.Command{
	Use:   "cycle <mm/dd/yyyy>",
	Short: "Print the rocket pool cycle containing a date and its epoch range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := epochUtils.ParseDate(args[0])
		if err != nil {
			return err
		}
		cycle, err := epochUtils.GetRocketPoolCycle(date)
		if err != nil {
			return err
		}
		fromEpoch, err := epochUtils.DateToEpoch(cycle.From)
		if err != nil {
			return err
		}
		toEpoch, err := epochUtils.DateToEpoch(cycle.To.Add(24*time.Hour - time.Second))
		if err != nil {
			return err
		}
		fmt.Printf("Cycle: %d\nFrom: %s\nTo: %s\nEpochs: %d-%d\n", cycle.Number, cycle.FromDate(), cycle.ToDate(), fromEpoch, toEpoch)
		return nil
	},
}

func init() {
	epochCmd.AddCommand(epochFromDateCmd)
	epochCmd.AddCommand(epochToDateCmd)
	epochCmd.AddCommand(epochCycleCmd)
}
