package fallback

import (
	"strings"
	"testing"
)

func TestDensityRatio(t *testing.T) {
	if got := DensityRatio(""); got != 0 {
		t.Errorf("DensityRatio(empty) = %f", got)
	}
	if got := DensityRatio("plain english text"); got != 0 {
		t.Errorf("DensityRatio(latin) = %f, want 0", got)
	}
	if got := DensityRatio("灵气修炼"); got != 1 {
		t.Errorf("DensityRatio(han) = %f, want 1", got)
	}
	mixed := DensityRatio("修炼 ab")
	if mixed <= 0.4 || mixed >= 0.6 {
		t.Errorf("DensityRatio(half dense) = %f, want ~0.5", mixed)
	}
}

func TestMaxChunkRunes_DenseTextGetsSmallerChunks(t *testing.T) {
	dense := strings.Repeat("灵", 200)
	sparse := strings.Repeat("a", 200)
	if MaxChunkRunes(dense, 1000) >= MaxChunkRunes(sparse, 1000) {
		t.Error("dense text should allow fewer runes per chunk than sparse text")
	}
}

func TestSplitChunks_ConcatenationReproducesInput(t *testing.T) {
	text := strings.Repeat("第一段落的内容。\n\n", 50)
	chunks := SplitChunks(text, 64)
	if len(chunks) < 2 {
		t.Fatalf("len(chunks) = %d, want several", len(chunks))
	}
	if joined := strings.Join(chunks, ""); joined != text {
		t.Error("concatenated chunks do not reproduce the input")
	}
}

func TestSplitChunks_SmallInputSingleChunk(t *testing.T) {
	chunks := SplitChunks("short text", 1000)
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestSplitChunks_HardSplitsOversizedLine(t *testing.T) {
	// One enormous line with no break points at all.
	text := strings.Repeat("灵", 5000)
	chunks := SplitChunks(text, 100)
	if len(chunks) < 2 {
		t.Fatalf("len(chunks) = %d, want > 1", len(chunks))
	}
	if joined := strings.Join(chunks, ""); joined != text {
		t.Error("hard-split chunks do not reproduce the input")
	}
	max := MaxChunkRunes(text, 100)
	for i, c := range chunks {
		if n := len([]rune(c)); n > max {
			t.Errorf("chunk %d has %d runes, exceeds %d", i, n, max)
		}
	}
}

func TestSplitChunks_Empty(t *testing.T) {
	if chunks := SplitChunks("", 100); chunks != nil {
		t.Errorf("chunks = %v, want nil", chunks)
	}
}
