package preprocess

import (
	"testing"

	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"
	"github.com/ZanzyTHEbar/seqprep/seqprep/params"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squadRecord() dataset.Example {
	return dataset.Example{
		"id":       "sq-0001",
		"title":    "River valley",
		"question": "Where does the river run?",
		"context":  "The river runs south through the valley.",
		"answers":  []string{"south through the valley", "south"},
	}
}

func TestSQuAD(t *testing.T) {
	params.Reset()
	out := dataset.Collect(SQuAD(dataset.FromExamples(squadRecord()), SQuADConfig{}))
	require.Len(t, out, 1)

	inputs, ok := out[0].Text("inputs")
	require.True(t, ok)
	assert.Equal(t, "question: Where does the river run ? context: The river runs south through the valley .", inputs)

	targets, ok := out[0].Text("targets")
	require.True(t, ok)
	assert.Equal(t, "south through the valley", targets, "first answer wins")

	answers, ok := out[0].Texts("answers")
	require.True(t, ok)
	assert.Equal(t, []string{"south through the valley", "south"}, answers)

	id, ok := out[0].Text("id")
	require.True(t, ok)
	assert.Equal(t, "sq-0001", id)
}

func TestSQuADWithoutContext(t *testing.T) {
	params.Reset()
	t.Cleanup(params.Reset)
	params.Bind("squad.include_context", false)

	out := dataset.Collect(SQuAD(dataset.FromExamples(squadRecord()), SQuADConfig{}))
	require.Len(t, out, 1)

	inputs, _ := out[0].Text("inputs")
	assert.Equal(t, "question: Where does the river run ?", inputs)
	assert.NotContains(t, inputs, "context:")
}

func TestSQuADDropsUnanswerable(t *testing.T) {
	params.Reset()
	noAnswer := squadRecord()
	noAnswer["answers"] = []string{}
	noQuestion := squadRecord()
	delete(noQuestion, "question")

	out := dataset.Collect(SQuAD(dataset.FromExamples(noAnswer, noQuestion, squadRecord()), SQuADConfig{}))
	assert.Len(t, out, 1)
}

func TestPadPunctuation(t *testing.T) {
	assert.Equal(t, "valley .", padPunctuation("valley."))
	assert.Equal(t, "a , b", padPunctuation("a,b"))
	assert.Equal(t, "no change here", padPunctuation("no  change   here"))
	assert.Empty(t, padPunctuation(""))
}
