package similarity

// Op labels one step of an alignment.
type Op string

const (
	// OpEqual marks runes that are identical (ignoring case) on both sides.
	OpEqual Op = "equal"
	// OpReplace marks a non-empty target run replaced by a non-empty recognized run.
	OpReplace Op = "replace"
	// OpInsert marks runes present only in the recognized string.
	OpInsert Op = "insert"
	// OpDelete marks runes present only in the target string.
	OpDelete Op = "delete"
)

// Range is a half-open [Start, End) interval of rune offsets.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of runes covered by r.
func (r Range) Len() int { return r.End - r.Start }

// Step is one operation of an alignment between a target and a recognized
// string. Segments carry the original (unfolded) text of each side.
type Step struct {
	Op              Op     `json:"op"`
	Target          string `json:"target"`
	Recognized      string `json:"recognized"`
	TargetRange     Range  `json:"target_range"`
	RecognizedRange Range  `json:"recognized_range"`
}

// Align returns the ordered edit steps that turn target into recognized.
//
// Concatenating Target over all steps reproduces the trimmed target, and
// concatenating Recognized reproduces the trimmed recognized string. An empty
// recognized string yields a single delete step spanning the whole target, or
// no steps at all when both strings are empty.
func Align(target, recognized string) []Step {
	ta, rb := prepare(target), prepare(recognized)
	blocks := orientedBlocks(fold(ta), fold(rb))
	blocks = append(blocks, block{i: len(ta), j: len(rb)})

	var steps []Step
	i, j := 0, 0
	for _, m := range blocks {
		var op Op
		switch {
		case i < m.i && j < m.j:
			op = OpReplace
		case i < m.i:
			op = OpDelete
		case j < m.j:
			op = OpInsert
		}
		if op != "" {
			steps = append(steps, newStep(op, ta, rb, i, m.i, j, m.j))
		}
		i, j = m.i+m.size, m.j+m.size
		if m.size > 0 {
			steps = append(steps, newStep(OpEqual, ta, rb, m.i, i, m.j, j))
		}
	}
	return steps
}

func newStep(op Op, a, b []rune, i1, i2, j1, j2 int) Step {
	return Step{
		Op:              op,
		Target:          string(a[i1:i2]),
		Recognized:      string(b[j1:j2]),
		TargetRange:     Range{Start: i1, End: i2},
		RecognizedRange: Range{Start: j1, End: j2},
	}
}

// Span is a mismatching alignment step kept for highlighting.
type Span Step

// Localize keeps the non-equal steps of an alignment, in order, with their
// original ranges and segments.
func Localize(steps []Step) []Span {
	spans := make([]Span, 0, len(steps))
	for _, s := range steps {
		if s.Op == OpEqual {
			continue
		}
		spans = append(spans, Span(s))
	}
	return spans
}
