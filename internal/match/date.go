package match

import (
	"fmt"
	"strconv"
	"strings"
)

// Date is a genealogical calendar date with optional month and day. Genealogy
// sources routinely record partial dates ("1847", "Mar 1847"), so Month and
// Day are zero when unknown.
type Date struct {
	Year   int
	Month  int
	Day    int
	Approx bool // carried an "abt"/"circa" qualifier
}

// Equal reports strict component equality. A partial date never equals a more
// specific one: "1847" and "12 Mar 1847" are different, because a provider
// value that is less specific than the local one is a discrepancy the user
// should see. Approximation qualifiers are ignored for equality.
func (d Date) Equal(other Date) bool {
	return d.Year == other.Year && d.Month == other.Month && d.Day == other.Day
}

func (d Date) String() string {
	switch {
	case d.Year == 0:
		return ""
	case d.Month == 0:
		return strconv.Itoa(d.Year)
	case d.Day == 0:
		return fmt.Sprintf("%s %d", monthNames[d.Month-1], d.Year)
	default:
		return fmt.Sprintf("%d %s %d", d.Day, monthNames[d.Month-1], d.Year)
	}
}

var monthNames = []string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

var monthIndex = func() map[string]int {
	m := make(map[string]int, 24)
	for i, name := range monthNames {
		m[strings.ToLower(name)] = i + 1
	}
	full := []string{
		"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december",
	}
	for i, name := range full {
		m[name] = i + 1
	}
	return m
}()

var approxQualifiers = []string{"abt", "abt.", "about", "circa", "ca", "ca.", "c.", "~"}

// ParseDate parses the date formats genealogy providers commonly emit:
//
//	"12 Mar 1847", "Mar 1847", "1847", "1847-03-12", "12.03.1847"
//
// with optional approximation qualifiers ("abt 1847"). It returns false when
// the text is not recognizable as a date, in which case callers fall back to
// normalized-text comparison.
func ParseDate(s string) (Date, bool) {
	text := Normalize(s)
	if text == "" {
		return Date{}, false
	}

	var d Date
	for _, q := range approxQualifiers {
		if strings.HasPrefix(text, q+" ") {
			d.Approx = true
			text = strings.TrimSpace(strings.TrimPrefix(text, q))
			break
		}
	}

	// ISO: 1847-03-12 or 1847-03
	if parts := strings.Split(text, "-"); len(parts) >= 2 && len(parts[0]) == 4 {
		if ok := parseISO(parts, &d); ok {
			return d, true
		}
	}
	// Dotted: 12.03.1847
	if parts := strings.Split(text, "."); len(parts) == 3 {
		if ok := parseDotted(parts, &d); ok {
			return d, true
		}
	}

	fields := strings.Fields(text)
	switch len(fields) {
	case 1:
		year, ok := parseYear(fields[0])
		if !ok {
			return Date{}, false
		}
		d.Year = year
		return d, true
	case 2: // "Mar 1847" or "1847 Mar"
		if month, ok := monthIndex[fields[0]]; ok {
			if year, ok := parseYear(fields[1]); ok {
				d.Month, d.Year = month, year
				return d, true
			}
		}
		if month, ok := monthIndex[fields[1]]; ok {
			if year, ok := parseYear(fields[0]); ok {
				d.Month, d.Year = month, year
				return d, true
			}
		}
	case 3: // "12 Mar 1847" or "Mar 12 1847"
		if month, ok := monthIndex[fields[1]]; ok {
			if day, err := strconv.Atoi(fields[0]); err == nil && validDay(day) {
				if year, ok := parseYear(fields[2]); ok {
					d.Day, d.Month, d.Year = day, month, year
					return d, true
				}
			}
		}
		if month, ok := monthIndex[fields[0]]; ok {
			if day, err := strconv.Atoi(strings.TrimSuffix(fields[1], ",")); err == nil && validDay(day) {
				if year, ok := parseYear(fields[2]); ok {
					d.Day, d.Month, d.Year = day, month, year
					return d, true
				}
			}
		}
	}
	return Date{}, false
}

func parseISO(parts []string, d *Date) bool {
	year, ok := parseYear(parts[0])
	if !ok {
		return false
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	d.Year, d.Month = year, month
	if len(parts) == 3 {
		day, err := strconv.Atoi(parts[2])
		if err != nil || !validDay(day) {
			return false
		}
		d.Day = day
	}
	return len(parts) <= 3
}

func parseDotted(parts []string, d *Date) bool {
	day, err := strconv.Atoi(parts[0])
	if err != nil || !validDay(day) {
		return false
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	year, ok := parseYear(parts[2])
	if !ok {
		return false
	}
	d.Day, d.Month, d.Year = day, month, year
	return true
}

func parseYear(s string) (int, bool) {
	if len(s) != 3 && len(s) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(s)
	if err != nil || year <= 0 {
		return 0, false
	}
	return year, true
}

func validDay(day int) bool {
	return day >= 1 && day <= 31
}

// DatesEqual compares two date strings under the comparison policy: parse
// both and require strict component equality; if either side does not parse,
// compare the normalized text instead.
func DatesEqual(a, b string) bool {
	da, okA := ParseDate(a)
	db, okB := ParseDate(b)
	if okA && okB {
		return da.Equal(db)
	}
	return Normalize(a) == Normalize(b)
}
