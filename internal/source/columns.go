// Package source reads counter feeds.
//
// A feed is a table whose first row is a header. One column holds the
// sample timestamp; every other column is "<station name> <code>", where
// code is a mode letter followed by a direction letter:
//
//	modes:      A car, P bike, J pedestrian, B bus
//	directions: K inbound, P outbound, T total
//
// For example "Auransilta AK" is the inbound car count of station
// Auransilta.
package source

import (
	"fmt"
	"strings"

	"github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/logging"
	"github.com/xtxerr/tally/internal/storage/types"
)

var log = logging.Component("source")

// Column is a decoded value column.
type Column struct {
	Index   int    // position in the row
	Header  string // raw header text
	Station string
	Field   types.Field
}

// Layout describes the columns of a feed.
type Layout struct {
	TimestampIndex int
	Columns        []Column

	// Stations lists station names in order of first appearance.
	Stations []string

	// Ignored holds headers that are neither the timestamp nor a value column.
	Ignored []string
}

// DecodeColumn splits a header into station name and field.
func DecodeColumn(header string) (station string, field types.Field, ok bool) {
	h := strings.TrimSpace(header)
	if len(h) < 3 {
		return "", 0, false
	}

	field, ok = types.ParseFieldCode(h[len(h)-2:])
	if !ok {
		return "", 0, false
	}

	rest := h[:len(h)-2]
	if rest == "" || (rest[len(rest)-1] != ' ' && rest[len(rest)-1] != '\t') {
		return "", 0, false
	}

	station = strings.TrimSpace(rest)
	if station == "" {
		return "", 0, false
	}
	return station, field, true
}

// DecodeColumns builds the layout of a header row.
//
// It fails with ErrStructuralConfig when the timestamp column is absent and
// with ErrNoValueColumns when no header decodes to a value column.
func DecodeColumns(headers []string, timestampColumn string) (*Layout, error) {
	l := &Layout{TimestampIndex: -1}

	seen := make(map[string]bool)
	dup := make(map[string]bool)

	for i, raw := range headers {
		h := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))

		if l.TimestampIndex < 0 && strings.EqualFold(h, timestampColumn) {
			l.TimestampIndex = i
			continue
		}

		station, field, ok := DecodeColumn(h)
		if !ok {
			l.Ignored = append(l.Ignored, h)
			continue
		}

		key := station + "\x00" + field.Code()
		if dup[key] {
			log.Warn("duplicate column ignored", "header", h, "index", i)
			l.Ignored = append(l.Ignored, h)
			continue
		}
		dup[key] = true

		if !seen[station] {
			seen[station] = true
			l.Stations = append(l.Stations, station)
		}
		l.Columns = append(l.Columns, Column{
			Index:   i,
			Header:  h,
			Station: station,
			Field:   field,
		})
	}

	if l.TimestampIndex < 0 {
		return nil, errors.NewStructural("timestamp column %q not found in header", timestampColumn)
	}
	if len(l.Columns) == 0 {
		return nil, fmt.Errorf("%w: %d headers, none decodable", errors.ErrNoValueColumns, len(headers))
	}

	if len(l.Ignored) > 0 {
		log.Debug("headers ignored", "count", len(l.Ignored), "headers", l.Ignored)
	}
	return l, nil
}

// StationColumns returns the columns of one station.
func (l *Layout) StationColumns(station string) []Column {
	var cols []Column
	for _, c := range l.Columns {
		if c.Station == station {
			cols = append(cols, c)
		}
	}
	return cols
}
