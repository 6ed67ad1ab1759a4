package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-punch-clock/location"
	"github.com/jrsteele09/go-punch-clock/punches"
)

// Query parameters that are not column filters.
var reservedParams = map[string]bool{"select": true, "order": true, "limit": true, "apikey": true}

type filter struct {
	column string
	op     string
	value  string
}

type ordering struct {
	column string
	desc   bool
}

type cellKind int

const (
	kindText cellKind = iota
	kindTime
	kindNumber
)

// cell is a column value; timestamps compare chronologically, numbers
// numerically and everything else as text.
type cell struct {
	kind cellKind
	text string
	time time.Time
	num  float64
}

func textCell(s string) cell    { return cell{kind: kindText, text: s} }
func timeCell(t time.Time) cell { return cell{kind: kindTime, time: t} }
func numberCell(f float64) cell { return cell{kind: kindNumber, num: f} }

func (c cell) compare(value string) (int, error) {
	switch c.kind {
	case kindTime:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return 0, fmt.Errorf("invalid input syntax for type timestamp with time zone: %q", value)
		}
		return c.time.Compare(t), nil
	case kindNumber:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid input syntax for type double precision: %q", value)
		}
		return compareFloat(c.num, f), nil
	}
	return strings.Compare(c.text, value), nil
}

func (c cell) compareCell(other cell) int {
	switch c.kind {
	case kindTime:
		return c.time.Compare(other.time)
	case kindNumber:
		return compareFloat(c.num, other.num)
	}
	return strings.Compare(c.text, other.text)
}

type row map[string]cell

func punchColumn(r punches.Record) row {
	return row{
		"id":        textCell(r.ID),
		"user_id":   textCell(r.UserID),
		"tipo":      textCell(string(r.Kind)),
		"data_hora": timeCell(r.Timestamp),
		"latitude":  numberCell(r.Latitude),
		"longitude": numberCell(r.Longitude),
	}
}

// punchColumns describes the column types of the punch table.
var punchColumns = punchColumn(punches.Record{})

// parseFilters reads the column filters, order and limit of a select.
// Filters look like column=op.value with op one of eq, neq, gt, gte, lt, lte.
func parseFilters(query url.Values, columns row) ([]filter, *ordering, int, error) {
	var filters []filter
	for column, values := range query {
		if reservedParams[column] {
			continue
		}
		if _, ok := columns[column]; !ok {
			return nil, nil, 0, fmt.Errorf("column %s does not exist", column)
		}
		for _, v := range values {
			op, value, ok := strings.Cut(v, ".")
			if !ok || !validOp(op) {
				return nil, nil, 0, fmt.Errorf("failed to parse filter (%s)", v)
			}
			filters = append(filters, filter{column: column, op: op, value: value})
		}
	}

	var sortBy *ordering
	if order := query.Get("order"); order != "" {
		column, direction, _ := strings.Cut(order, ".")
		if _, ok := columns[column]; !ok {
			return nil, nil, 0, fmt.Errorf("column %s does not exist", column)
		}
		sortBy = &ordering{column: column, desc: strings.HasPrefix(direction, "desc")}
	}

	limit := 0
	if l := query.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return nil, nil, 0, fmt.Errorf("invalid limit %q", l)
		}
		limit = n
	}
	return filters, sortBy, limit, nil
}

func validOp(op string) bool {
	switch op {
	case "eq", "neq", "gt", "gte", "lt", "lte":
		return true
	}
	return false
}

// checkFilters reports filter values that cannot be compared with their column.
func checkFilters(filters []filter, columns row) error {
	for _, f := range filters {
		if _, err := columns[f.column].compare(f.value); err != nil {
			return err
		}
	}
	return nil
}

func (f filter) match(r row) bool {
	c, err := r[f.column].compare(f.value)
	if err != nil {
		return false
	}
	switch f.op {
	case "eq":
		return c == 0
	case "neq":
		return c != 0
	case "gt":
		return c > 0
	case "gte":
		return c >= 0
	case "lt":
		return c < 0
	case "lte":
		return c <= 0
	}
	return false
}

func matchAll(filters []filter, r row) bool {
	for _, f := range filters {
		if !f.match(r) {
			return false
		}
	}
	return true
}

func (o *ordering) less(a, b row) bool {
	c := a[o.column].compareCell(b[o.column])
	if o.desc {
		return c > 0
	}
	return c < 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func locationColumn(s location.Sample) row {
	return row{
		"user_id":   textCell(s.UserID),
		"latitude":  numberCell(s.Latitude),
		"longitude": numberCell(s.Longitude),
		"timestamp": timeCell(s.Timestamp),
	}
}

var locationColumns = locationColumn(location.Sample{})
