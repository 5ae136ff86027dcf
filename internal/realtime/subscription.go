package realtime

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/livecast/backend/internal/models"
)

var watchedTables = map[string]bool{
	"messages": true,
	"streams":  true,
	"videos":   true,
}

var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var (
	ErrUnknownTable  = errors.New("table is not watched")
	ErrInvalidFilter = errors.New(`filter must look like "column=eq.value"`)
)

// subscription selects change events of one table, optionally narrowed to
// rows whose column equals value.
type subscription struct {
	table  string
	column string
	value  string
}

func parseSubscription(p models.WSSubscribePayload) (subscription, error) {
	if !watchedTables[p.Table] {
		return subscription{}, ErrUnknownTable
	}
	s := subscription{table: p.Table}
	if p.Filter == "" {
		return s, nil
	}
	column, rest, ok := strings.Cut(p.Filter, "=")
	if !ok || !columnPattern.MatchString(column) {
		return subscription{}, ErrInvalidFilter
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok || value == "" {
		return subscription{}, ErrInvalidFilter
	}
	s.column, s.value = column, value
	return s, nil
}

func (s subscription) key() string {
	if s.column == "" {
		return s.table
	}
	return s.table + ":" + s.column + "=eq." + s.value
}

// matches applies the filter to the new row, or the old one for deletes.
// Hidden chat rows never match.
func (s subscription) matches(evt models.ChangeEvent) bool {
	if evt.Table != s.table {
		return false
	}
	row := evt.Record
	if row == nil {
		row = evt.OldRecord
	}
	if row == nil {
		return false
	}
	if s.table == "messages" {
		if hidden, ok := row["hidden"].(bool); !ok || hidden {
			return false
		}
	}
	if s.column == "" {
		return true
	}
	v, ok := row[s.column]
	if !ok {
		return false
	}
	return valueString(v) == s.value
}

func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	}
	return fmt.Sprint(v)
}
