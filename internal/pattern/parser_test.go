package pattern

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func kinds(steps []Step) []Kind {
	out := make([]Kind, len(steps))
	for i, s := range steps {
		out[i] = s.Kind
	}
	return out
}

func mustParse(t *testing.T, text string) []Step {
	t.Helper()
	steps, err := Parse(text)
	if err != nil {
		t.Fatalf("parse %q failed: %v", text, err)
	}
	return steps
}

func TestParseNestedGroups(t *testing.T) {
	steps := mustParse(t, "0 [1 2] 3 [2 1]")
	if len(steps) != 4 {
		t.Fatalf("expected 4 top-level slots, got %d", len(steps))
	}
	if steps[1].Kind != KindGroup || len(steps[1].Children) != 2 {
		t.Fatalf("slot 1 should be a 2-way group, got %+v", steps[1])
	}
	if steps[3].Kind != KindGroup || len(steps[3].Children) != 2 {
		t.Fatalf("slot 3 should be a 2-way group, got %+v", steps[3])
	}
	if got := Onsets(steps); got != 6 {
		t.Fatalf("expected 6 onsets per cycle, got %d", got)
	}
	if steps[3].Children[0].Value.Num != 2 || steps[3].Children[1].Value.Num != 1 {
		t.Fatalf("unexpected children %+v", steps[3].Children)
	}
}

func TestParseDeterministic(t *testing.T) {
	inputs := []string{
		"0 [1 2] 3 [2 1]",
		"0... ? [0,2,4] . .",
		"[[0 1] [2 [3 4]]] C4 bd",
		"0 1 2 @8 3 @2",
	}
	for _, in := range inputs {
		a := mustParse(t, in)
		b := mustParse(t, in)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("parse of %q is not deterministic", in)
		}
	}
}

func TestParseHoldsAndRests(t *testing.T) {
	tests := []struct {
		in   string
		want []Kind
	}{
		{"0...", []Kind{KindNote, KindHold, KindHold, KindHold}},
		{"....", []Kind{KindRest, KindRest, KindRest, KindRest}},
		{". . .", []Kind{KindRest, KindRest, KindRest}},
		{"0 ...", []Kind{KindNote, KindRest, KindRest, KindRest}},
		{"[0,4]. 1", []Kind{KindChord, KindHold, KindNote}},
		{"[0 1].", []Kind{KindGroup, KindHold}},
		{"? ?.", []Kind{KindWildcard, KindWildcard, KindHold}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := kinds(mustParse(t, tt.in))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseChord(t *testing.T) {
	steps := mustParse(t, "[0, 2 ,4]")
	if len(steps) != 1 || steps[0].Kind != KindChord {
		t.Fatalf("expected one chord slot, got %+v", steps)
	}
	vals := steps[0].Values()
	if len(vals) != 3 || vals[0].Num != 0 || vals[1].Num != 2 || vals[2].Num != 4 {
		t.Fatalf("unexpected chord values %+v", vals)
	}
	if Onsets(steps) != 3 {
		t.Fatalf("expected 3 onsets, got %d", Onsets(steps))
	}
}

func TestParseValues(t *testing.T) {
	steps := mustParse(t, "C4 eb3 f#-1 -1 +2 bd x")
	want := []Value{
		{Num: 60, Abs: true},
		{Num: 51, Abs: true},
		{Num: 6, Abs: true},
		{Num: -1},
		{Num: 2},
		{Symbol: "bd"},
		{Symbol: "x"},
	}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(steps))
	}
	for i, w := range want {
		if steps[i].Value != w {
			t.Fatalf("step %d: expected %+v, got %+v", i, w, steps[i].Value)
		}
	}
}

func TestParseFill(t *testing.T) {
	tests := []struct {
		in   string
		fill FillPolicy
		want string
	}{
		{"0 1 2 @8", FillRepeat, "0 1 2 0 1 2 0 1"},
		{"0 1 2@8", FillRepeat, "0 1 2 0 1 2 0 1"},
		{"0 1 2 3 4 @3", FillRepeat, "0 1 2"},
		{"0 1 @2 3 4 5 @4", FillRepeat, "0 1 3 4 5 3"},
		{"0 1 2 @5", FillPad, "0 1 2 . ."},
		{"0 1 2 3 @2", FillPad, "0 1"},
		{".@16", FillRepeat, strings.TrimSpace(strings.Repeat(". ", 16))},
		{"[0 1] @3", FillRepeat, "[0 1] [0 1] [0 1]"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg := DefaultParserConfig()
			cfg.Fill = tt.fill
			steps, err := NewParser(cfg).Parse(tt.in)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if got := Format(steps); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseFillLength(t *testing.T) {
	for _, n := range []int{1, 5, 16, 33} {
		in := "0 [1 2] . 3" + " @" + strconv.Itoa(n)
		steps := mustParse(t, in)
		if len(steps) != n {
			t.Fatalf("%q: expected %d slots, got %d", in, n, len(steps))
		}
	}
}

func TestParseErrorsDegradeToRest(t *testing.T) {
	tests := []struct {
		in  string
		pos int
	}{
		{"[0 1", 0},
		{"0 1]", 3},
		{"[]", 0},
		{"[0,,2]", 3},
		{"[0,[1 2]]", 3},
		{"[0 1, 2]", 3},
		{"0 @0", 2},
		{"@4", 0},
		{"0 @", 2},
		{"0 , 1", 2},
		{"-", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			steps, err := Parse(tt.in)
			if err == nil {
				t.Fatalf("expected parse error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Pos != tt.pos {
				t.Fatalf("expected error at %d, got %d (%v)", tt.pos, pe.Pos, err)
			}
			if len(steps) != 1 || steps[0].Kind != KindRest {
				t.Fatalf("expected single rest fallback, got %+v", steps)
			}
		})
	}
}

func TestParseMaxDepth(t *testing.T) {
	ok := strings.Repeat("[", 16) + "0" + strings.Repeat("]", 16)
	if _, err := Parse(ok); err != nil {
		t.Fatalf("depth 16 should parse: %v", err)
	}
	deep := strings.Repeat("[", 17) + "0" + strings.Repeat("]", 17)
	if _, err := Parse(deep); err == nil {
		t.Fatalf("expected depth error")
	}
}

func TestParseReset(t *testing.T) {
	steps, err := Parse(" . ")
	if err != nil || steps != nil {
		t.Fatalf("expected reset to yield nil steps, got %v, %v", steps, err)
	}
	if !IsReset(".") || IsReset("..") || IsReset(". .") {
		t.Fatalf("unexpected IsReset results")
	}
}

func TestFormatRoundTrip(t *testing.T) {
	in := "0.. [1 2] [0,2,4] ? . C4 bd"
	if got := Format(mustParse(t, in)); got != in {
		t.Fatalf("expected %q, got %q", in, got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	steps := mustParse(t, "[0 [1,2]]")
	cp := CloneSteps(steps)
	cp[0].Children[1].Chord[0].Num = 9
	if steps[0].Children[1].Chord[0].Num != 1 {
		t.Fatalf("clone shares chord storage")
	}
}

func TestParseSingleStepAndValue(t *testing.T) {
	p := NewParser(DefaultParserConfig())
	st, err := p.ParseStep("[0,4]")
	if err != nil || st.Kind != KindChord || len(st.Chord) != 2 {
		t.Fatalf("unexpected step %+v, %v", st, err)
	}
	if _, err := p.ParseStep("0 1"); err == nil {
		t.Fatalf("expected error for two steps")
	}
	cases := map[string]Value{
		"3":   {Num: 3},
		"-2":  {Num: -2},
		"A4":  {Num: 69, Abs: true},
		" x ": {Symbol: "x"},
	}
	for in, want := range cases {
		got, err := ParseValue(in)
		if err != nil || got != want {
			t.Fatalf("ParseValue(%q) = %+v, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "[", "1 2", "?"} {
		if _, err := ParseValue(bad); err == nil {
			t.Fatalf("ParseValue(%q) should fail", bad)
		}
	}
}
