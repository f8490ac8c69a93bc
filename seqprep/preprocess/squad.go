package preprocess

import (
	"strings"
	"unicode"

	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"
	"github.com/ZanzyTHEbar/seqprep/seqprep/params"
)

// SQuADConfig controls SQuAD.
type SQuADConfig struct {
	// IncludeContext prefixes the context passage onto the question.
	// Defaults to on; reading-comprehension without the passage is a
	// closed-book variant.
	IncludeContext *bool
}

func (c *SQuADConfig) applyParams() {
	if c.IncludeContext == nil {
		v := true
		if bound, ok := params.Bool("squad.include_context"); ok {
			v = bound
		}
		c.IncludeContext = &v
	}
}

// SQuAD shapes question-answering records into text-to-text form:
// inputs "question: <q> context: <c>", targets the first answer. Examples
// without a question or answer are dropped. Punctuation is space-padded so
// tokenizers treat it uniformly.
func SQuAD(s dataset.Stream, cfg SQuADConfig) dataset.Stream {
	cfg.applyParams()
	return dataset.FlatMap(s, func(ex dataset.Example) []dataset.Example {
		question, ok := ex.Text("question")
		if !ok {
			return nil
		}
		answers, ok := ex.Texts("answers")
		if !ok || len(answers) == 0 {
			return nil
		}
		context, _ := ex.Text("context")

		q := padPunctuation(question)
		c := padPunctuation(context)
		a := padPunctuation(answers[0])

		var inputs string
		if *cfg.IncludeContext {
			inputs = strings.Join([]string{"question:", q, "context:", c}, " ")
		} else {
			inputs = strings.Join([]string{"question:", q}, " ")
		}

		out := dataset.Example{
			"inputs":   inputs,
			"targets":  a,
			"question": q,
			"context":  c,
			"answers":  append([]string(nil), answers...),
		}
		if id, ok := ex.Text("id"); ok {
			out["id"] = id
		}
		return []dataset.Example{out}
	})
}

// padPunctuation spaces out punctuation marks and collapses the resulting
// whitespace, so "valley." tokenizes like "valley" followed by ".".
func padPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) {
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
