package chunker

import (
	"strings"
	"unicode"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
	MinSize        = 100
)

// Options are measured in runes. A zero Overlap means the default; pass a
// negative value for none.
type Options struct {
	Size    int
	Overlap int
}

func (o Options) normalized() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Size < MinSize {
		o.Size = MinSize
	}
	switch {
	case o.Overlap == 0:
		o.Overlap = DefaultOverlap
	case o.Overlap < 0:
		o.Overlap = 0
	}
	if o.Overlap >= o.Size/2 {
		o.Overlap = o.Size/2 - 1
	}
	return o
}

type Chunk struct {
	Index int
	Text  string
	// Start and End are rune offsets into the input.
	Start int
	End   int
}

// Split cuts text into overlapping windows of at most Size runes. Windows end
// on the strongest boundary found in their back half.
func Split(text string, opts Options) []Chunk {
	opts = opts.normalized()
	r := []rune(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	out := make([]Chunk, 0, len(r)/(opts.Size-opts.Overlap)+1)
	start := 0
	for start < len(r) {
		end := start + opts.Size
		if end >= len(r) {
			end = len(r)
		} else {
			end = boundary(r, start, end)
		}

		if c, ok := trimmed(r, start, end); ok {
			c.Index = len(out)
			out = append(out, c)
		}
		if end == len(r) {
			break
		}

		next := end - opts.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// boundary picks the cut point in r[start:end]: paragraph break, then line
// break, then sentence end, then a space. Only the back half is searched.
func boundary(r []rune, start, end int) int {
	min := start + (end-start)/2
	if i := lastIndex(r, min, end, "\n\n"); i >= 0 {
		return i + 2
	}
	if i := lastIndex(r, min, end, "\n"); i >= 0 {
		return i + 1
	}
	for i := end - 1; i > min; i-- {
		if unicode.IsSpace(r[i]) && isSentenceEnd(r[i-1]) {
			return i + 1
		}
	}
	for i := end - 1; i > min; i-- {
		if r[i] == ' ' {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(c rune) bool {
	return c == '.' || c == '!' || c == '?'
}

func lastIndex(r []rune, from, to int, sep string) int {
	s := []rune(sep)
	for i := to - len(s); i >= from; i-- {
		match := true
		for j := range s {
			if r[i+j] != s[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func trimmed(r []rune, start, end int) (Chunk, bool) {
	for start < end && unicode.IsSpace(r[start]) {
		start++
	}
	for end > start && unicode.IsSpace(r[end-1]) {
		end--
	}
	if start >= end {
		return Chunk{}, false
	}
	return Chunk{Text: string(r[start:end]), Start: start, End: end}, true
}

// EstimateTokens approximates the OpenAI tokenizer at four characters per token.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
