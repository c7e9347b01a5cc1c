package irigb

import (
	"errors"
	"fmt"
	"time"
)

// TimeRecord holds the fields carried by one valid frame. Year is two digits; the century is not encoded.
type TimeRecord struct {
	Seconds          int
	Minutes          int
	Hours            int
	DayOfYear        int
	Year             int
	TimeOfDaySeconds int
	ControlFunctions int
}

// weighted is one bit position and the value it contributes when set.
type weighted struct {
	pos    int
	weight int
}

// BCD field layouts: low decade right after a marker, high decade after the unused index.
var (
	secondsBits = []weighted{{1, 1}, {2, 2}, {3, 4}, {4, 8}, {6, 10}, {7, 20}, {8, 40}}
	minutesBits = []weighted{{10, 1}, {11, 2}, {12, 4}, {13, 8}, {15, 10}, {16, 20}, {17, 40}}
	hoursBits   = []weighted{{20, 1}, {21, 2}, {22, 4}, {23, 8}, {25, 10}, {26, 20}}
	dayBits     = []weighted{
		{30, 1}, {31, 2}, {32, 4}, {33, 8},
		{35, 10}, {36, 20}, {37, 40}, {38, 80},
		{40, 100}, {41, 200},
	}
	yearBits = []weighted{{50, 1}, {51, 2}, {52, 4}, {53, 8}, {55, 10}, {56, 20}, {57, 40}, {58, 80}}
)

// Straight binary fields: consecutive positions with power-of-two weights, skipping markers.
var (
	timeOfDayBits = binaryRun(80, 17)
	controlBits   = binaryRun(60, 18)
)

func binaryRun(from, n int) []weighted {
	out := make([]weighted, 0, n)
	for pos, w := from, 1; len(out) < n; pos++ {
		if IsReferencePosition(pos) {
			continue
		}
		out = append(out, weighted{pos, w})
		w <<= 1
	}
	return out
}

func sum(f Frame, bits []weighted) int {
	v := 0
	for _, b := range bits {
		v += f.Pulses[b.pos].Class.Bit() * b.weight
	}
	return v
}

// DecodeFields extracts the time fields from a frame that passed Validate.
// Digits outside 0-9 are not rejected; see CheckRange.
func DecodeFields(f Frame) TimeRecord {
	return TimeRecord{
		Seconds:          sum(f, secondsBits),
		Minutes:          sum(f, minutesBits),
		Hours:            sum(f, hoursBits),
		DayOfYear:        sum(f, dayBits),
		Year:             sum(f, yearBits),
		TimeOfDaySeconds: sum(f, timeOfDayBits),
		ControlFunctions: sum(f, controlBits),
	}
}

// ErrFieldRange matches every error reported by CheckRange.
var ErrFieldRange = errors.New("irigb: field out of range")

// bcdFields lists the BCD fields and their nominal value ranges.
var bcdFields = []struct {
	name   string
	bits   []weighted
	lo, hi int
}{
	{"seconds", secondsBits, 0, 59},
	{"minutes", minutesBits, 0, 59},
	{"hours", hoursBits, 0, 23},
	{"day_of_year", dayBits, 1, 366},
	{"year", yearBits, 0, 99},
}

// digits splits a BCD field into its decimal digits, lowest decade first.
func digits(f Frame, bits []weighted) []int {
	var out []int
	for _, b := range bits {
		scale, d := 1, 0
		for b.weight >= scale*10 {
			scale *= 10
			d++
		}
		for len(out) <= d {
			out = append(out, 0)
		}
		out[d] += f.Pulses[b.pos].Class.Bit() * b.weight / scale
	}
	return out
}

// CheckRange reports BCD digits above 9 and fields outside their nominal range in a frame
// that passed Validate. DecodeFields is not affected by the result.
func CheckRange(f Frame) error {
	var errs []error
	r := DecodeFields(f)
	values := map[string]int{
		"seconds":     r.Seconds,
		"minutes":     r.Minutes,
		"hours":       r.Hours,
		"day_of_year": r.DayOfYear,
		"year":        r.Year,
	}
	for _, fld := range bcdFields {
		for i, d := range digits(f, fld.bits) {
			if d > 9 {
				errs = append(errs, fmt.Errorf("%w: %s digit %d is %d", ErrFieldRange, fld.name, i, d))
			}
		}
		if v := values[fld.name]; v < fld.lo || v > fld.hi {
			errs = append(errs, fmt.Errorf("%w: %s=%d not in [%d,%d]", ErrFieldRange, fld.name, v, fld.lo, fld.hi))
		}
	}
	if r.TimeOfDaySeconds > 86399 {
		errs = append(errs, fmt.Errorf("%w: time_of_day_seconds=%d", ErrFieldRange, r.TimeOfDaySeconds))
	}
	// Some generators leave straight binary seconds at zero.
	if r.TimeOfDaySeconds != 0 && r.TimeOfDaySeconds != int(r.SinceMidnight()/time.Second) {
		errs = append(errs, fmt.Errorf("%w: time_of_day_seconds=%d disagrees with %02d:%02d:%02d",
			ErrFieldRange, r.TimeOfDaySeconds, r.Hours, r.Minutes, r.Seconds))
	}
	return errors.Join(errs...)
}

// SinceMidnight returns the BCD time of day as a duration.
func (r TimeRecord) SinceMidnight() time.Duration {
	return time.Duration(r.Hours)*time.Hour +
		time.Duration(r.Minutes)*time.Minute +
		time.Duration(r.Seconds)*time.Second
}

func (r TimeRecord) String() string {
	return fmt.Sprintf("%03d %02d:%02d:%02d %02d tod=%d", r.DayOfYear, r.Hours, r.Minutes, r.Seconds, r.Year, r.TimeOfDaySeconds)
}
