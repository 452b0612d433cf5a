package chunker

import (
	"strconv"
	"unicode"

	"scholarqa/internal/models"
)

// Config controls chunk boundaries. All sizes are in runes.
type Config struct {
	TargetSize   int
	Overlap      int
	MinChunkSize int
	Tolerance    int
}

func (c Config) withDefaults() Config {
	if c.TargetSize <= 0 {
		c.TargetSize = 1200
	}
	if c.Overlap < 0 || c.Overlap >= c.TargetSize {
		c.Overlap = 0
	}
	if c.MinChunkSize <= 0 {
		c.MinChunkSize = c.TargetSize / 10
	}
	if c.Tolerance < 0 || c.Tolerance >= c.TargetSize {
		c.Tolerance = c.TargetSize / 6
	}
	return c
}

// Split cuts extracted text into overlapping chunks with exact rune offsets
// into the source. The split is a greedy forward walk that prefers paragraph
// then sentence boundaries within TargetSize±Tolerance and hard-splits at
// TargetSize otherwise. Identical input and config always yield identical
// boundaries, so chunk ids are stable across re-ingestion.
//
// Chunk text is the untouched slice text[CharStart:CharEnd]; concatenating a
// paper's chunks and trimming the configured overlap reproduces the source.
func Split(paperID, text string, cfg Config) []models.Chunk {
	cfg = cfg.withDefaults()
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	chunks := make([]models.Chunk, 0, n/cfg.TargetSize+1)
	start := 0
	ordinal := 0
	for start < n {
		end := start + cfg.TargetSize
		if end >= n {
			end = n
			if end-start < cfg.MinChunkSize && len(chunks) > 0 {
				// Trailing fragment folds into the previous chunk.
				last := &chunks[len(chunks)-1]
				last.CharEnd = n
				last.Text = string(runes[last.CharStart:n])
				break
			}
		} else {
			end = boundaryWithin(runes, start, end, cfg.Tolerance)
		}

		chunks = append(chunks, models.Chunk{
			ChunkID:   paperID + ":" + strconv.Itoa(ordinal),
			PaperID:   paperID,
			Ordinal:   ordinal,
			Text:      string(runes[start:end]),
			CharStart: start,
			CharEnd:   end,
		})
		ordinal++
		if end == n {
			break
		}
		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// boundaryWithin looks for the furthest paragraph break, then sentence end,
// inside [target-tolerance, target+tolerance]. Falls back to the hard target.
func boundaryWithin(runes []rune, start, target, tolerance int) int {
	lo := target - tolerance
	if lo <= start {
		lo = start + 1
	}
	hi := target + tolerance
	if hi > len(runes) {
		hi = len(runes)
	}

	for e := hi; e > lo; e-- {
		if e >= 2 && runes[e-1] == '\n' && runes[e-2] == '\n' {
			return e
		}
	}
	for e := hi; e > lo; e-- {
		if isSentenceEnd(runes, e) {
			return e
		}
	}
	return target
}

func isSentenceEnd(runes []rune, e int) bool {
	c := runes[e-1]
	if c != '.' && c != '!' && c != '?' {
		return false
	}
	if e == len(runes) {
		return true
	}
	return unicode.IsSpace(runes[e])
}

// Reconstruct concatenates a paper's chunks, trimming overlaps using the
// recorded offsets. It is the inverse of Split for a well-formed sequence.
func Reconstruct(chunks []models.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	out := []rune(chunks[0].Text)
	prevEnd := chunks[0].CharEnd
	for _, c := range chunks[1:] {
		text := []rune(c.Text)
		skip := prevEnd - c.CharStart
		if skip < 0 {
			skip = 0
		}
		if skip > len(text) {
			skip = len(text)
		}
		out = append(out, text[skip:]...)
		prevEnd = c.CharEnd
	}
	return string(out)
}
