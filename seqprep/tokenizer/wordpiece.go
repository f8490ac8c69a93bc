package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
)

// WordPiece wraps a sugarme/tokenizer BERT-style WordPiece model. Unlike the
// classifier setup it does not inject [CLS]/[SEP] or pad: training targets
// keep their natural length and the batcher pads later.
type WordPiece struct {
	t         *tk.Tokenizer
	vocab     []string
	maxSeqLen int
}

// NewWordPiece loads a vocab.txt (one token per line, line number is the id)
// and builds the WordPiece tokenizer around it.
func NewWordPiece(vocabPath string, maxSeqLen int) (*WordPiece, error) {
	if vocabPath == "" {
		return nil, fmt.Errorf("%w: wordpiece mode needs a vocab path", ErrUnsupported)
	}
	vocab, err := readVocabLines(vocabPath)
	if err != nil {
		return nil, err
	}
	wp, err := wordpiece.NewWordPieceFromFile(vocabPath, "[UNK]")
	if err != nil {
		return nil, fmt.Errorf("load wordpiece vocab %s: %w", vocabPath, err)
	}

	t := tk.NewTokenizer(wp)
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())
	if maxSeqLen > 0 {
		t.WithTruncation(&tk.TruncationParams{MaxLength: maxSeqLen})
	}
	return &WordPiece{t: t, vocab: vocab, maxSeqLen: maxSeqLen}, nil
}

func (w *WordPiece) Encode(text string) []int64 {
	enc, err := w.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), false)
	if err != nil {
		return nil
	}
	raw := enc.GetIds()
	ids := make([]int64, len(raw))
	for i, id := range raw {
		ids[i] = int64(id)
	}
	return ids
}

// Decode rebuilds text from ids using the vocab file directly: continuation
// pieces ("##x") glue to the previous token, bracketed specials are dropped.
func (w *WordPiece) Decode(ids []int64) string {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= int64(len(w.vocab)) {
			continue
		}
		tok := w.vocab[id]
		if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
			continue
		}
		if cont, ok := strings.CutPrefix(tok, "##"); ok {
			b.WriteString(cont)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
	}
	return b.String()
}

func (w *WordPiece) VocabSize() int {
	return len(w.vocab)
}

func readVocabLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read wordpiece vocab: %w", err)
	}
	defer f.Close()

	var vocab []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		vocab = append(vocab, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read wordpiece vocab: %w", err)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("wordpiece vocab %s is empty", path)
	}
	return vocab, nil
}
