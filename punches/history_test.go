package punches_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-punch-clock/internal/utils"
	"github.com/jrsteele09/go-punch-clock/punches"
	fakepunchrepo "github.com/jrsteele09/go-punch-clock/punches/repofake"
	"github.com/stretchr/testify/require"
)

func TestGroupByDay_ThreeDays(t *testing.T) {
	d1 := time.Date(2026, 10, 13, 0, 0, 0, 0, brt)
	d2 := d1.AddDate(0, 0, 1)
	d3 := d1.AddDate(0, 0, 2)

	records := []punches.Record{
		record(punches.KindClockIn, d2.Add(8*time.Hour)),
		record(punches.KindClockIn, d1.Add(8*time.Hour)),
		record(punches.KindClockOut, d3.Add(18*time.Hour)),
		record(punches.KindClockOut, d2.Add(17*time.Hour)),
		record(punches.KindClockIn, d3.Add(9*time.Hour)),
		record(punches.KindLunchStart, d2.Add(12*time.Hour)),
	}

	groups := punches.GroupByDay(records, brt)
	require.Len(t, groups, 3)
	require.Equal(t, "15/10/2026", groups[0].Label)
	require.Equal(t, "14/10/2026", groups[1].Label)
	require.Equal(t, "13/10/2026", groups[2].Label)

	for _, g := range groups {
		for i := 1; i < len(g.Records); i++ {
			require.True(t, g.Records[i-1].Timestamp.After(g.Records[i].Timestamp), "group %s not descending", g.Label)
		}
	}
	require.Len(t, groups[1].Records, 3)
	require.Equal(t, punches.KindClockOut, groups[1].Records[0].Kind)
}

func TestGroupByDay_UsesLocalCalendarDay(t *testing.T) {
	// 01:30 UTC on the 16th is still the 15th in BRT
	records := []punches.Record{
		record(punches.KindClockOut, time.Date(2026, 10, 16, 1, 30, 0, 0, time.UTC)),
		record(punches.KindClockIn, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)),
	}
	groups := punches.GroupByDay(records, brt)
	require.Len(t, groups, 1)
	require.Equal(t, "15/10/2026", groups[0].Label)
}

func TestGroupByDay_Empty(t *testing.T) {
	require.Empty(t, punches.GroupByDay(nil, brt))
}

func TestListPunches_DateFilter(t *testing.T) {
	repo := fakepunchrepo.NewFakePunchRepo()
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, brt)
	repo.Seed(
		record(punches.KindClockIn, day.Add(-time.Millisecond)),
		record(punches.KindClockIn, day),
		record(punches.KindClockOut, day.Add(24*time.Hour-time.Millisecond)),
		record(punches.KindClockIn, day.Add(24*time.Hour)),
		punches.Record{UserID: "someone-else", Kind: punches.KindClockIn, Timestamp: day.Add(time.Hour)},
	)
	history := punches.NewHistory(repo, brt)

	all, err := history.ListPunches(context.Background(), testUserID, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.True(t, all[0].Timestamp.After(all[1].Timestamp))

	filtered, err := history.ListPunches(context.Background(), testUserID, utils.Ptr(day.Add(15*time.Hour)))
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	require.Equal(t, punches.KindClockOut, filtered[0].Kind)
	require.Equal(t, punches.KindClockIn, filtered[1].Kind)

	groups := history.GroupByDay(all)
	require.Len(t, groups, 3)
}
