package sequencer

import (
	"testing"

	"github.com/cbegin/stepseq/internal/pattern"
	"github.com/cbegin/stepseq/internal/theory"
	"github.com/cbegin/stepseq/internal/voice"
)

func BenchmarkSequencerProcess(b *testing.B) {
	steps, err := pattern.Parse("0 [1 2] 3 [2 1] [0,2,4]. ? 6")
	if err != nil {
		b.Fatalf("parse failed: %v", err)
	}
	buf := make([]float32, 2048*2)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		seq := New(48000, theory.New(), voice.NewAllocator(16, voice.Nop{}, nil))
		for tr := 0; tr < 4; tr++ {
			if err := seq.Sequence(tr, steps, "", 0.125); err != nil {
				b.Fatalf("sequence failed: %v", err)
			}
			seq.Start(tr)
		}
		seq.Process(buf)
	}
}
