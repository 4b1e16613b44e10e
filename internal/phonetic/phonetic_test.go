package phonetic_test

import (
	"testing"

	"github.com/lingualoop/lingualoop/internal/phonetic"
)

func TestCompare_SoundsAlike(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	tests := []struct {
		target, recognized string
	}{
		{"pronunciation", "pronunsiation"},
		{"phone", "fone"},
		{"knight", "night"},
		{"Umbrella", "umbrela"},
	}
	for _, tt := range tests {
		c := m.Compare(tt.target, tt.recognized)
		if !c.CodesOverlap {
			t.Errorf("Compare(%q, %q): codes %q/%q do not overlap", tt.target, tt.recognized, c.TargetCode, c.RecognizedCode)
		}
		if !c.SoundsAlike {
			t.Errorf("Compare(%q, %q): SoundsAlike=false (closeness %.3f), want true", tt.target, tt.recognized, c.Closeness)
		}
	}
}

func TestCompare_Different(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	c := m.Compare("cat", "dog")
	if c.SoundsAlike {
		t.Errorf("Compare(cat, dog): SoundsAlike=true, want false")
	}
	if c.CodesOverlap {
		t.Errorf("Compare(cat, dog): codes overlap, want none")
	}
}

func TestCompare_Identical(t *testing.T) {
	t.Parallel()

	c := phonetic.New().Compare("  Weather ", "weather")
	if c.Closeness != 1 {
		t.Errorf("closeness = %f, want 1", c.Closeness)
	}
	if !c.SoundsAlike || c.TargetCode != c.RecognizedCode {
		t.Errorf("identical words must sound alike: %+v", c)
	}
}

func TestCompare_Empty(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	for _, pair := range [][2]string{{"", "x"}, {"word", ""}, {"  ", "  "}} {
		if c := m.Compare(pair[0], pair[1]); c != (phonetic.Comparison{}) {
			t.Errorf("Compare(%q, %q) = %+v, want zero value", pair[0], pair[1], c)
		}
	}
}

func TestCompare_MultiWordConcatenation(t *testing.T) {
	t.Parallel()

	c := phonetic.New().Compare("ice cream", "icecream")
	if !c.SoundsAlike {
		t.Errorf("Compare(ice cream, icecream): SoundsAlike=false (closeness %.3f)", c.Closeness)
	}
}

func TestCompare_Thresholds(t *testing.T) {
	t.Parallel()

	strict := phonetic.New(phonetic.WithPhoneticThreshold(0.99), phonetic.WithFuzzyThreshold(0.99))
	if c := strict.Compare("phone", "fone"); c.SoundsAlike {
		t.Errorf("strict matcher accepted phone/fone with closeness %.3f", c.Closeness)
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	best, conf, ok := m.Match("umbrela", []string{"rain", "umbrella", "wet"})
	if !ok || best != "umbrella" {
		t.Fatalf("Match = %q, %v; want umbrella, true", best, ok)
	}
	if conf < 0.7 {
		t.Errorf("confidence = %f, want >= 0.7", conf)
	}

	if best, _, ok := m.Match("xylophone", []string{"rain", "wet"}); ok {
		t.Errorf("Match(xylophone) = %q, want no match", best)
	}
	if _, _, ok := m.Match("rain", nil); ok {
		t.Error("Match with no candidates must not match")
	}
}
