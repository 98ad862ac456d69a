package fuzzy

import "testing"

var capitals = []Item{
	{ID: "berlin", Display: "Berlin"},
	{ID: "vienna", Display: "Vienna", Aliases: []string{"Wien"}},
	{ID: "rome", Display: "Rome", Aliases: []string{"Roma"}},
	{ID: "bern", Display: "Bern"},
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  Berlin ", "berlin"},
		{"MÜNCHEN", "muenchen"},
		{"Groß-Gerau", "grossgerau"},
		{"St.  Pölten!", "st poelten"},
		{"", ""},
		{"?!.", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMatchExactAndAlias(t *testing.T) {
	cases := []struct {
		input    string
		wantID   string
		wantType MatchType
	}{
		{"Berlin", "berlin", MatchExact},
		{"berlin", "berlin", MatchExact},
		{"Wien", "vienna", MatchAlias},
		{"roma", "rome", MatchAlias},
	}
	for _, tc := range cases {
		got := Match(tc.input, capitals, nil, 0.8)
		if !got.IsMatch || got.MatchedItemID != tc.wantID || got.MatchType != tc.wantType {
			t.Errorf("Match(%q) = %+v, want %s via %s", tc.input, got, tc.wantID, tc.wantType)
		}
		if got.Confidence != 1 {
			t.Errorf("Match(%q) confidence = %v, want 1", tc.input, got.Confidence)
		}
	}
}

func TestMatchTypoTolerance(t *testing.T) {
	got := Match("Berlni", capitals, nil, 0.6)
	if !got.IsMatch || got.MatchedItemID != "berlin" || got.MatchType != MatchFuzzy {
		t.Fatalf("typo should fuzzy-match berlin, got %+v", got)
	}
	if got.Confidence >= 1 || got.Confidence < 0.6 {
		t.Fatalf("confidence %v outside (0.6, 1)", got.Confidence)
	}
}

func TestMatchThreshold(t *testing.T) {
	// One edit away from Bern but far from the rest; a strict threshold
	// rejects it.
	got := Match("Bxrn", capitals, nil, 0.99)
	if got.IsMatch {
		t.Fatalf("threshold 0.99 should reject a typo, got %+v", got)
	}
}

func TestMatchAlreadyGuessed(t *testing.T) {
	guessed := map[string]bool{"berlin": true}

	got := Match("Berlin", capitals, guessed, 0.8)
	if got.IsMatch {
		t.Fatal("guessed item must not match again")
	}
	if !got.AlreadyGuessed || got.MatchedItemID != "berlin" {
		t.Fatalf("expected alreadyGuessed for berlin, got %+v", got)
	}
}

func TestMatchNothing(t *testing.T) {
	got := Match("Atlantis", capitals, nil, 0.8)
	if got.IsMatch || got.AlreadyGuessed {
		t.Fatalf("nonsense input matched: %+v", got)
	}
	if got.MatchType == MatchExact || got.MatchType == MatchAlias {
		t.Fatalf("unexpected match type %s", got.MatchType)
	}

	if res := Match("   ", capitals, nil, 0.8); res.IsMatch {
		t.Fatal("blank input must not match")
	}
}
