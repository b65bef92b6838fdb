package types

import "fmt"

// Mode is a transportation type measured by a counter station.
type Mode int

const (
	ModeCar Mode = iota
	ModeBike
	ModePedestrian
	ModeBus
)

// NumModes is the number of transportation modes.
const NumModes = 4

// String returns the lowercase name used in column names.
func (m Mode) String() string {
	switch m {
	case ModeCar:
		return "car"
	case ModeBike:
		return "bike"
	case ModePedestrian:
		return "pedestrian"
	case ModeBus:
		return "bus"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Code returns the single-letter code used in feed column headers.
func (m Mode) Code() byte {
	switch m {
	case ModeCar:
		return 'A'
	case ModeBike:
		return 'P'
	case ModePedestrian:
		return 'J'
	case ModeBus:
		return 'B'
	default:
		return '?'
	}
}

// ParseModeCode decodes a feed mode letter.
func ParseModeCode(c byte) (Mode, bool) {
	switch c {
	case 'A':
		return ModeCar, true
	case 'P':
		return ModeBike, true
	case 'J':
		return ModePedestrian, true
	case 'B':
		return ModeBus, true
	default:
		return 0, false
	}
}

// Direction is the travel direction relative to the city centre.
type Direction int

const (
	DirectionInbound Direction = iota
	DirectionOutbound
	DirectionTotal
)

// NumDirections is the number of directions, including the total.
const NumDirections = 3

// String returns the lowercase name used in column names.
func (d Direction) String() string {
	switch d {
	case DirectionInbound:
		return "inbound"
	case DirectionOutbound:
		return "outbound"
	case DirectionTotal:
		return "total"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Code returns the single-letter code used in feed column headers.
func (d Direction) Code() byte {
	switch d {
	case DirectionInbound:
		return 'K'
	case DirectionOutbound:
		return 'P'
	case DirectionTotal:
		return 'T'
	default:
		return '?'
	}
}

// ParseDirectionCode decodes a feed direction letter.
func ParseDirectionCode(c byte) (Direction, bool) {
	switch c {
	case 'K':
		return DirectionInbound, true
	case 'P':
		return DirectionOutbound, true
	case 'T':
		return DirectionTotal, true
	default:
		return 0, false
	}
}

// Field identifies one mode x direction counter.
type Field int

// NumFields is the number of counters carried by every bucket.
const NumFields = NumModes * NumDirections

// FieldOf returns the field for a mode and direction.
func FieldOf(m Mode, d Direction) Field {
	return Field(int(m)*NumDirections + int(d))
}

// Mode returns the field's mode.
func (f Field) Mode() Mode {
	return Mode(int(f) / NumDirections)
}

// Direction returns the field's direction.
func (f Field) Direction() Direction {
	return Direction(int(f) % NumDirections)
}

// String returns the column name, e.g. "car_inbound".
func (f Field) String() string {
	return f.Mode().String() + "_" + f.Direction().String()
}

// Code returns the two-letter feed code, e.g. "AK".
func (f Field) Code() string {
	return string([]byte{f.Mode().Code(), f.Direction().Code()})
}

// ParseFieldCode decodes a two-letter feed code.
func ParseFieldCode(code string) (Field, bool) {
	if len(code) != 2 {
		return 0, false
	}
	m, ok := ParseModeCode(code[0])
	if !ok {
		return 0, false
	}
	d, ok := ParseDirectionCode(code[1])
	if !ok {
		return 0, false
	}
	return FieldOf(m, d), true
}

// AllFields returns every field in storage order.
func AllFields() []Field {
	fields := make([]Field, NumFields)
	for i := range fields {
		fields[i] = Field(i)
	}
	return fields
}

// Counts holds one integer per Field.
type Counts [NumFields]int64

// Get returns the counter for a mode and direction.
func (c *Counts) Get(m Mode, d Direction) int64 {
	return c[FieldOf(m, d)]
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	for i := range c {
		c[i] += other[i]
	}
}

// IsZero returns true if every counter is zero.
func (c *Counts) IsZero() bool {
	for _, v := range c {
		if v != 0 {
			return false
		}
	}
	return true
}

// Volume returns the sum of the total counters of all modes.
func (c *Counts) Volume() int64 {
	var sum int64
	for m := Mode(0); m < NumModes; m++ {
		sum += c.Get(m, DirectionTotal)
	}
	return sum
}

// Sum adds up a slice of counts.
func Sum(all []Counts) Counts {
	var out Counts
	for _, c := range all {
		out.Add(c)
	}
	return out
}
