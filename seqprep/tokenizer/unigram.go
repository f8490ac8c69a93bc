package tokenizer

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	radix "github.com/armon/go-radix"
)

// spaceMarker is the SentencePiece whitespace symbol (U+2581). Normalization
// replaces word boundaries with it so pieces carry their own leading space.
const spaceMarker = "▁"

// defaultUnkScore is charged per rune when no vocabulary piece matches.
const defaultUnkScore = -15.0

// Unigram segments text with a SentencePiece unigram model: normalization to
// the U+2581 word-boundary convention, then a Viterbi search for the highest
// scoring piece sequence. Ids are the model's native piece indices.
type Unigram struct {
	pieces    []Piece
	scores    []float32
	index     *radix.Tree
	maxSeqLen int

	unkID    int64
	unkScore float32
	padID    int64
	bosID    int64
	eosID    int64
}

// NewUnigram loads a serialized SentencePiece model from path. Control
// pieces never match text; the unknown piece is charged per rune wherever no
// vocabulary piece fits.
func NewUnigram(modelPath string, maxSeqLen int) (*Unigram, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: unigram mode needs a model path", ErrUnsupported)
	}
	m, err := LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	u := &Unigram{
		pieces:    m.Pieces,
		scores:    make([]float32, len(m.Pieces)),
		index:     radix.New(),
		maxSeqLen: maxSeqLen,
		unkID:     -1,
		unkScore:  defaultUnkScore,
		padID:     -1,
		bosID:     -1,
		eosID:     -1,
	}
	for i, p := range m.Pieces {
		u.scores[i] = p.Score
		switch p.Type {
		case PieceUnknown:
			u.unkID = int64(i)
			u.unkScore = p.Score
		case PieceControl:
			switch p.Piece {
			case "<pad>":
				u.padID = int64(i)
			case "<s>":
				u.bosID = int64(i)
			case "</s>":
				u.eosID = int64(i)
			}
		case PieceNormal, PieceUserDefined, PieceByte:
			u.index.Insert(p.Piece, int64(i))
		}
	}
	if u.unkID < 0 {
		return nil, fmt.Errorf("model defines no unknown piece")
	}
	return u, nil
}

// Encode segments text into piece ids. Unknown runes map to the unknown id.
func (u *Unigram) Encode(text string) []int64 {
	norm := normalize(text)
	if norm == "" {
		return nil
	}
	n := len(norm)

	// Forward Viterbi over byte positions. best[i] is the score of the best
	// segmentation of norm[:i]; prev and via record the backtrace.
	best := make([]float64, n+1)
	prev := make([]int, n+1)
	via := make([]int64, n+1)
	for i := 1; i <= n; i++ {
		best[i] = math.Inf(-1)
	}
	for j := 0; j < n; j++ {
		if math.IsInf(best[j], -1) {
			continue
		}
		u.index.WalkPath(norm[j:], func(piece string, v interface{}) bool {
			id := v.(int64)
			end := j + len(piece)
			if sc := best[j] + float64(u.scores[id]); sc > best[end] {
				best[end] = sc
				prev[end] = j
				via[end] = id
			}
			return false
		})
		_, size := utf8.DecodeRuneInString(norm[j:])
		end := j + size
		if sc := best[j] + float64(u.unkScore); sc > best[end] {
			best[end] = sc
			prev[end] = j
			via[end] = u.unkID
		}
	}

	var ids []int64
	for i := n; i > 0; i = prev[i] {
		ids = append(ids, via[i])
	}
	for l, r := 0, len(ids)-1; l < r; l, r = l+1, r-1 {
		ids[l], ids[r] = ids[r], ids[l]
	}
	if u.maxSeqLen > 0 && len(ids) > u.maxSeqLen {
		ids = ids[:u.maxSeqLen]
	}
	return ids
}

// Decode maps ids back to text. Control ids are dropped, the space marker
// becomes a plain space, and out-of-range ids are ignored.
func (u *Unigram) Decode(ids []int64) string {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= int64(len(u.pieces)) {
			continue
		}
		p := u.pieces[id]
		if p.Type == PieceControl {
			continue
		}
		b.WriteString(p.Piece)
	}
	return strings.TrimPrefix(strings.ReplaceAll(b.String(), spaceMarker, " "), " ")
}

func (u *Unigram) VocabSize() int {
	return len(u.pieces)
}

// PieceID looks up the id of an exact piece string, -1 when absent.
func (u *Unigram) PieceID(piece string) int64 {
	if v, ok := u.index.Get(piece); ok {
		return v.(int64)
	}
	return -1
}

// IDPiece returns the surface string of an id, "" when out of range.
func (u *Unigram) IDPiece(id int64) string {
	if id < 0 || id >= int64(len(u.pieces)) {
		return ""
	}
	return u.pieces[id].Piece
}

func (u *Unigram) UnkID() int64 { return u.unkID }
func (u *Unigram) PadID() int64 { return u.padID }
func (u *Unigram) BosID() int64 { return u.bosID }
func (u *Unigram) EosID() int64 { return u.eosID }

// normalize collapses whitespace runs and rewrites word boundaries with the
// SentencePiece space marker, including the dummy prefix before the first
// word.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(spaceMarker))
	pendingSpace := true
	for _, r := range text {
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace {
			b.WriteString(spaceMarker)
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
