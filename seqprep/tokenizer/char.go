package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// maxCodePoint bounds the char-mode id space to the Unicode code space.
const maxCodePoint = 0x110000

// Char tokenizes text as Unicode code points, one id per rune. It needs no
// model file and serves as the baseline vocabulary for corpus filtering.
type Char struct {
	maxSeqLen int
}

// NewChar returns a code-point tokenizer. maxSeqLen truncates when > 0.
func NewChar(maxSeqLen int) *Char {
	return &Char{maxSeqLen: maxSeqLen}
}

func (c *Char) Encode(text string) []int64 {
	ids := make([]int64, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		ids = append(ids, int64(r))
	}
	if c.maxSeqLen > 0 && len(ids) > c.maxSeqLen {
		ids = ids[:c.maxSeqLen]
	}
	return ids
}

func (c *Char) Decode(ids []int64) string {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= maxCodePoint {
			b.WriteRune(utf8.RuneError)
			continue
		}
		b.WriteRune(rune(id))
	}
	return b.String()
}

func (c *Char) VocabSize() int {
	return maxCodePoint
}
