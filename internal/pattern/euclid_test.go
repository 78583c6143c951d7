package pattern

import (
	"reflect"
	"testing"
)

func hitIndices(pat []bool) []int {
	out := []int{}
	for i, on := range pat {
		if on {
			out = append(out, i)
		}
	}
	return out
}

func TestEuclidCounts(t *testing.T) {
	for steps := 1; steps <= 16; steps++ {
		for hits := 0; hits <= steps; hits++ {
			pat := Euclid(hits, steps, 0)
			if len(pat) != steps {
				t.Fatalf("E(%d,%d): expected length %d, got %d", hits, steps, steps, len(pat))
			}
			if got := len(hitIndices(pat)); got != hits {
				t.Fatalf("E(%d,%d): expected %d hits, got %d", hits, steps, hits, got)
			}
			if !reflect.DeepEqual(Euclid(hits, steps, steps), pat) {
				t.Fatalf("E(%d,%d): rotation by steps is not identity", hits, steps)
			}
		}
	}
}

func TestEuclidCanonical(t *testing.T) {
	tests := []struct {
		hits, steps, rot int
		want             []int
	}{
		{3, 8, 0, []int{0, 3, 6}},
		{3, 8, 1, []int{2, 5, 7}},
		{3, 8, -1, []int{1, 4, 7}},
		{4, 16, 0, []int{0, 4, 8, 12}},
		{5, 8, 0, []int{0, 2, 4, 5, 7}},
		{0, 4, 0, []int{}},
		{4, 4, 0, []int{0, 1, 2, 3}},
	}
	for _, tt := range tests {
		got := hitIndices(Euclid(tt.hits, tt.steps, tt.rot))
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("E(%d,%d,%d): expected %v, got %v", tt.hits, tt.steps, tt.rot, tt.want, got)
		}
	}
}

func TestEuclidClamps(t *testing.T) {
	if Euclid(3, 0, 0) != nil {
		t.Fatalf("expected nil for zero steps")
	}
	if got := len(hitIndices(Euclid(9, 4, 0))); got != 4 {
		t.Fatalf("expected hits clamped to 4, got %d", got)
	}
}

func TestEuclidSteps(t *testing.T) {
	steps := EuclidSteps("*", 3, 8, 0)
	if len(steps) != 8 {
		t.Fatalf("expected 8 steps, got %d", len(steps))
	}
	for i, s := range steps {
		hit := i == 0 || i == 3 || i == 6
		if hit && (s.Kind != KindNote || s.Value.Symbol != "*") {
			t.Fatalf("slot %d: expected '*' hit, got %+v", i, s)
		}
		if !hit && s.Kind != KindRest {
			t.Fatalf("slot %d: expected rest, got %+v", i, s)
		}
	}
	if v := EuclidSteps("2", 1, 2, 0)[0].Value; v.IsSymbol() || v.Num != 2 {
		t.Fatalf("expected numeric degree, got %+v", v)
	}
	if v := EuclidSteps("C4", 1, 2, 0)[0].Value; !v.Abs || v.Num != 60 {
		t.Fatalf("expected C4 pitch, got %+v", v)
	}
}
