package epochUtils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_EpochUtils(t *testing.T) {
	t.Run("Should convert a date to its epoch", func(t *testing.T) {
		epoch, err := DateToEpoch(time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC))
		assert.Nil(t, err)
		assert.Equal(t, uint64(6862), epoch)
	})
	t.Run("Should treat genesis as epoch zero", func(t *testing.T) {
		epoch, err := DateToEpoch(GenesisTime)
		assert.Nil(t, err)
		assert.Equal(t, uint64(0), epoch)

		epoch, err = DateToEpoch(GenesisTime.Add(383 * time.Second))
		assert.Nil(t, err)
		assert.Equal(t, uint64(0), epoch)
	})
	t.Run("Should normalize other time zones to UTC", func(t *testing.T) {
		est := time.FixedZone("EST", -5*3600)
		a, _ := DateToEpoch(time.Date(2020, time.December, 31, 19, 0, 0, 0, est))
		b, _ := DateToEpoch(time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, a, b)
	})
	t.Run("Should reject dates before genesis", func(t *testing.T) {
		_, err := DateToEpoch(time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC))
		assert.NotNil(t, err)
	})
	t.Run("Should convert epochs back to dates", func(t *testing.T) {
		assert.Equal(t, GenesisTime, EpochToDate(0))
		assert.Equal(t, GenesisTime.Add(24*time.Hour), EpochToDate(225))
		assert.Equal(t, 1, DaysBetween(0, 225))
		assert.Equal(t, 0, DaysBetween(225, 0))
	})
}

func Test_RocketPoolCycle(t *testing.T) {
	t.Run("Should find the cycle containing a date", func(t *testing.T) {
		cycle, err := GetRocketPoolCycle(time.Date(2024, time.September, 15, 0, 0, 0, 0, time.UTC))
		assert.Nil(t, err)
		assert.Equal(t, 27, cycle.Number)
		assert.Equal(t, "08/29/2024", cycle.FromDate())
		assert.Equal(t, "09/25/2024", cycle.ToDate())
	})
	t.Run("Should start with cycle one", func(t *testing.T) {
		cycle, err := GetRocketPoolCycle(RocketPoolStart)
		assert.Nil(t, err)
		assert.Equal(t, 1, cycle.Number)
		assert.Equal(t, "09/01/2022", cycle.FromDate())
		assert.Equal(t, "09/28/2022", cycle.ToDate())

		next, err := GetRocketPoolCycle(time.Date(2022, time.September, 29, 0, 0, 0, 0, time.UTC))
		assert.Nil(t, err)
		assert.Equal(t, 2, next.Number)
	})
	t.Run("Should parse mm/dd/yyyy dates", func(t *testing.T) {
		d, err := ParseDate("05/15/2023")
		assert.Nil(t, err)
		assert.Equal(t, time.May, d.Month())

		_, err = ParseDate("2023-05-15")
		assert.NotNil(t, err)
	})
	t.Run("Should reject dates before the first cycle", func(t *testing.T) {
		_, err := GetRocketPoolCycle(time.Date(2022, time.August, 31, 0, 0, 0, 0, time.UTC))
		assert.NotNil(t, err)
	})
}
