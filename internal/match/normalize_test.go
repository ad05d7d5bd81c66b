package match

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Jonas   Petrauskas ", "jonas petrauskas"},
		{"JONAS\tPETRAUSKAS", "jonas petrauskas"},
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFoldName_Diacritics(t *testing.T) {
	if got := FoldName("Müller"); got != "muller" {
		t.Errorf("expected muller, got %q", got)
	}
	if got := FoldName("Žemaitė"); got != "zemaite" {
		t.Errorf("expected zemaite, got %q", got)
	}
	if FoldName("O'Brien, John") != "o brien john" {
		t.Errorf("punctuation should fold to spaces, got %q", FoldName("O'Brien, John"))
	}
}

func TestNameSimilarity(t *testing.T) {
	if s := NameSimilarity("Jonas Petrauskas", "jonas  PETRAUSKAS"); s != 1.0 {
		t.Errorf("case/space-insensitive match should score 1.0, got %v", s)
	}
	if s := NameSimilarity("Jonas Petrauskas", "Jonas Petrauskas I"); s < 0.85 {
		t.Errorf("substring match should score high, got %v", s)
	}
	if s := NameSimilarity("Jonas Petrauskas", "Ona Kazlauskienė"); s > 0.2 {
		t.Errorf("unrelated names should score low, got %v", s)
	}
	if s := NameSimilarity("", "anything"); s != 0 {
		t.Errorf("empty name should score 0, got %v", s)
	}
}

func TestBestCandidate_Tie(t *testing.T) {
	idx, score, tie := BestCandidate("Jonas Petrauskas", []string{
		"Jonas Petrauskas",
		"Ona Kazlauskienė",
	}, 0.1)
	if idx != 0 || tie {
		t.Errorf("expected clear winner at index 0, got idx=%d score=%v tie=%v", idx, score, tie)
	}

	// Two near-identical candidates are ambiguous.
	_, _, tie = BestCandidate("Jonas Petrauskas", []string{
		"Jonas Petrauskas I",
		"Jonas Petrauskas II",
	}, 0.1)
	if !tie {
		t.Errorf("expected tie for near-identical candidates")
	}

	idx, _, _ = BestCandidate("anyone", nil, 0.1)
	if idx != -1 {
		t.Errorf("expected -1 for no candidates, got %d", idx)
	}
}
