package match

import "testing"

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
		ok   bool
	}{
		{"12 Mar 1847", Date{Year: 1847, Month: 3, Day: 12}, true},
		{"Mar 1847", Date{Year: 1847, Month: 3}, true},
		{"1847", Date{Year: 1847}, true},
		{"1847-03-12", Date{Year: 1847, Month: 3, Day: 12}, true},
		{"1847-03", Date{Year: 1847, Month: 3}, true},
		{"12.03.1847", Date{Year: 1847, Month: 3, Day: 12}, true},
		{"March 12, 1847", Date{Year: 1847, Month: 3, Day: 12}, true},
		{"abt 1847", Date{Year: 1847, Approx: true}, true},
		{"circa 1900", Date{Year: 1900, Approx: true}, true},
		{"", Date{}, false},
		{"unknown", Date{}, false},
		{"32 Mar 1847", Date{}, false},
		{"12 Foo 1847", Date{}, false},
	}
	for _, c := range cases {
		got, ok := ParseDate(c.in)
		if ok != c.ok {
			t.Errorf("ParseDate(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("ParseDate(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

// Partial dates never subsume full ones: a year-only provider value against a
// fully specified local date counts as a difference worth the user's
// attention. This pins the comparison policy for the literal pair
// "12 Mar 1847" vs "1847".
func TestDatesEqual_PartialDatePolicy(t *testing.T) {
	if DatesEqual("12 Mar 1847", "1847") {
		t.Errorf(`"12 Mar 1847" vs "1847" must compare different`)
	}
	if !DatesEqual("12 Mar 1847", "1847-03-12") {
		t.Errorf("equivalent full dates in different formats must match")
	}
	if !DatesEqual("abt 1847", "1847") {
		t.Errorf("approximation qualifier alone must not break equality")
	}
}

func TestDatesEqual_TextFallback(t *testing.T) {
	if !DatesEqual("before the war", " Before   the WAR ") {
		t.Errorf("unparseable dates must fall back to normalized text")
	}
	if DatesEqual("before the war", "1847") {
		t.Errorf("unparseable vs parseable must not match")
	}
}

func TestDateString(t *testing.T) {
	cases := []struct {
		d    Date
		want string
	}{
		{Date{Year: 1847, Month: 3, Day: 12}, "12 Mar 1847"},
		{Date{Year: 1847, Month: 3}, "Mar 1847"},
		{Date{Year: 1847}, "1847"},
		{Date{}, ""},
	}
	for _, c := range cases {
		if got := c.d.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}
