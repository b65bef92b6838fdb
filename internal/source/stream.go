package source

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Row is one record of a feed.
type Row struct {
	Line  int // 1-based line of the record, the header is line 1
	Cells []string
}

// Cell returns cell i, or "" and false when the row is too short.
func (r Row) Cell(i int) (string, bool) {
	if i < 0 || i >= len(r.Cells) {
		return "", false
	}
	return r.Cells[i], true
}

// Stream yields the rows of a feed in file order.
type Stream interface {
	// Columns returns the header row.
	Columns() []string

	// Next returns the next row, or io.EOF after the last one.
	Next() (Row, error)

	Close() error
}

// CSVStream reads a comma separated feed.
type CSVStream struct {
	r       *csv.Reader
	closer  io.Closer
	columns []string
}

// NewCSV reads the header of r and returns a stream over the remaining
// records. Close closes r if it is an io.Closer.
func NewCSV(r io.Reader) (*CSVStream, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty feed: %w", io.ErrUnexpectedEOF)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	s := &CSVStream{r: cr, columns: header}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// Columns returns the header row.
func (s *CSVStream) Columns() []string {
	return s.columns
}

// Next returns the next record. Blank lines are skipped by encoding/csv.
func (s *CSVStream) Next() (Row, error) {
	rec, err := s.r.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}
	if err != nil {
		return Row{}, fmt.Errorf("read record: %w", err)
	}

	line, _ := s.r.FieldPos(0)
	return Row{Line: line, Cells: rec}, nil
}

// Close closes the underlying reader.
func (s *CSVStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
