package fallback

import (
	"strings"
	"unicode"
)

// Dense scripts expand heavily when translated: one CJK rune is roughly one
// output token, while sparse scripts average several runes per token. The
// chunker sizes chunks so the estimated output stays inside the smallest
// feasible completion budget.
const (
	denseRunesPerToken  = 1.0
	sparseRunesPerToken = 4.0
	// outputExpansion pads for translations running longer than the input.
	outputExpansion = 1.3
)

// DensityRatio returns the proportion of dense-script runes (Han, Hiragana,
// Katakana, Hangul) in text.
func DensityRatio(text string) float64 {
	if text == "" {
		return 0
	}
	total, dense := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isDenseRune(r) {
			dense++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(dense) / float64(total)
}

func isDenseRune(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// MaxChunkRunes estimates how many input runes fit within an output token
// budget, given the text's script density.
func MaxChunkRunes(text string, outputTokenBudget int) int {
	density := DensityRatio(text)
	runesPerToken := sparseRunesPerToken - (sparseRunesPerToken-denseRunesPerToken)*density
	max := int(float64(outputTokenBudget) * runesPerToken / outputExpansion)
	if max < 1 {
		max = 1
	}
	return max
}

// SplitChunks splits text into ordered chunks each expected to fit within
// the output token budget. Splits prefer paragraph boundaries, then line
// boundaries, then rune position. Concatenating the chunks reproduces the
// input exactly; nothing is dropped or reordered.
func SplitChunks(text string, outputTokenBudget int) []string {
	return SplitRunes(text, MaxChunkRunes(text, outputTokenBudget))
}

// SplitRunes splits text into ordered chunks of at most maxRunes runes,
// preferring paragraph and line boundaries. Concatenating the chunks
// reproduces the input exactly.
func SplitRunes(text string, maxRunes int) []string {
	if text == "" {
		return nil
	}
	if maxRunes < 1 {
		maxRunes = 1
	}
	if len([]rune(text)) <= maxRunes {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentRunes := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentRunes = 0
		}
	}

	for _, part := range splitKeeping(text, "\n\n") {
		partRunes := len([]rune(part))

		if partRunes > maxRunes {
			// Paragraph too large on its own: fall back to lines, then to
			// hard rune splits.
			for _, line := range splitKeeping(part, "\n") {
				lineRunes := len([]rune(line))
				if lineRunes > maxRunes {
					flush()
					for _, piece := range hardSplit(line, maxRunes) {
						chunks = append(chunks, piece)
					}
					continue
				}
				if currentRunes+lineRunes > maxRunes {
					flush()
				}
				current.WriteString(line)
				currentRunes += lineRunes
			}
			continue
		}

		if currentRunes+partRunes > maxRunes {
			flush()
		}
		current.WriteString(part)
		currentRunes += partRunes
	}
	flush()

	return chunks
}

// splitKeeping splits s after each occurrence of sep, keeping the separator
// attached to the preceding piece so that joining reproduces s.
func splitKeeping(s, sep string) []string {
	if s == "" {
		return nil
	}
	var parts []string
	for {
		i := strings.Index(s, sep)
		if i < 0 {
			parts = append(parts, s)
			return parts
		}
		parts = append(parts, s[:i+len(sep)])
		s = s[i+len(sep):]
		if s == "" {
			return parts
		}
	}
}

// hardSplit cuts s into pieces of at most maxRunes runes.
func hardSplit(s string, maxRunes int) []string {
	runes := []rune(s)
	var parts []string
	for len(runes) > 0 {
		n := maxRunes
		if n > len(runes) {
			n = len(runes)
		}
		parts = append(parts, string(runes[:n]))
		runes = runes[n:]
	}
	return parts
}
