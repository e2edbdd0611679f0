// Package epochUtils converts between beacon chain epochs and calendar dates.
package epochUtils

import (
	"fmt"
	"time"
)

const (
	SecondsPerEpoch = 384
	DateFormat      = "01/02/2006"

	rocketPoolCycleDays = 28
)

var (
	// Beacon chain mainnet genesis.
	GenesisTime = time.Date(2020, time.December, 1, 12, 0, 23, 0, time.UTC)

	RocketPoolStart = time.Date(2022, time.September, 1, 0, 0, 0, 0, time.UTC)
)

// DateToEpoch returns the epoch containing t.
func DateToEpoch(t time.Time) (uint64, error) {
	t = t.UTC()
	if t.Before(GenesisTime) {
		return 0, fmt.Errorf("%s is before beacon chain genesis", t.Format(time.RFC3339))
	}
	elapsed := t.Unix() - GenesisTime.Unix()
	return uint64(elapsed / SecondsPerEpoch), nil
}

// EpochToDate returns the start time of epoch.
func EpochToDate(epoch uint64) time.Time {
	return GenesisTime.Add(time.Duration(epoch) * SecondsPerEpoch * time.Second)
}

// DaysBetween returns the number of whole days between the starts of two epochs.
func DaysBetween(from uint64, to uint64) int {
	if to <= from {
		return 0
	}
	return int(EpochToDate(to).Sub(EpochToDate(from)).Hours() / 24)
}

type RocketPoolCycle struct {
	Number int       `json:"cycleNumber"`
	From   time.Time `json:"-"`
	To     time.Time `json:"-"`
}

func (c *RocketPoolCycle) FromDate() string {
	return c.From.Format(DateFormat)
}

func (c *RocketPoolCycle) ToDate() string {
	return c.To.Format(DateFormat)
}

// GetRocketPoolCycle returns the 28 day reward cycle containing the date.
// Cycle 1 starts on 09/01/2022.
func GetRocketPoolCycle(date time.Time) (*RocketPoolCycle, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(RocketPoolStart) {
		return nil, fmt.Errorf("%s is before the first rocket pool cycle", day.Format(DateFormat))
	}

	daysSinceStart := int(day.Sub(RocketPoolStart).Hours() / 24)
	number := daysSinceStart/rocketPoolCycleDays + 1

	from := RocketPoolStart.AddDate(0, 0, (number-1)*rocketPoolCycleDays)
	return &RocketPoolCycle{
		Number: number,
		From:   from,
		To:     from.AddDate(0, 0, rocketPoolCycleDays-1),
	}, nil
}

// ParseDate parses a mm/dd/yyyy date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be in the format mm/dd/yyyy: %w", err)
	}
	return t, nil
}
