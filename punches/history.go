package punches

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// DateLabelLayout is the dd/mm/yyyy layout used for day group labels.
const DateLabelLayout = "02/01/2006"

// DayGroup holds the punches of one local calendar day.
type DayGroup struct {
	Date    time.Time // midnight of the day in the history's zone
	Label   string
	Records []Record
}

// History reads the punch table for display.
type History struct {
	repo Repo
	loc  *time.Location
}

func NewHistory(repo Repo, loc *time.Location) *History {
	if loc == nil {
		loc = time.Local
	}
	return &History{repo: repo, loc: loc}
}

// ListPunches returns the user's punches newest first. When day is non-nil
// only the punches of that local calendar day are returned.
func (h *History) ListPunches(ctx context.Context, userID string, day *time.Time) ([]Record, error) {
	query := Query{UserID: userID}
	if day != nil {
		query.From, query.To = DayBounds(*day, h.loc)
	}
	records, err := h.repo.List(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "[History.ListPunches] list")
	}
	return records, nil
}

// GroupByDay groups records by local calendar day. Groups are ordered most
// recent day first and records inside a group most recent first.
func (h *History) GroupByDay(records []Record) []DayGroup {
	return GroupByDay(records, h.loc)
}

func GroupByDay(records []Record, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}

	byDay := make(map[time.Time][]Record)
	for _, r := range records {
		day, _ := DayBounds(r.Timestamp, loc)
		byDay[day] = append(byDay[day], r)
	}

	groups := make([]DayGroup, 0, len(byDay))
	for day, dayRecords := range byDay {
		sort.SliceStable(dayRecords, func(i, j int) bool {
			return dayRecords[i].Timestamp.After(dayRecords[j].Timestamp)
		})
		groups = append(groups, DayGroup{
			Date:    day,
			Label:   day.Format(DateLabelLayout),
			Records: dayRecords,
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Date.After(groups[j].Date)
	})
	return groups
}
