package skills

import (
	"strings"

	"github.com/snow-ghost/skillforge/core"
)

// Classification labels the input with one of labels.
func Classification(name string, labels []string) Config {
	return Config{
		Name:          name,
		Description:   "tool used to classify input based on a predefined set of labels",
		Instruction:   "Label the input text with the following labels: " + core.Escape(strings.Join(labels, ", ")),
		InputTemplate: "Input: {input}",
		Output: []core.Field{{
			Name:        "predictions",
			Description: "one of " + strings.Join(labels, ", "),
		}},
		PredictionField: "predictions",
	}
}

// QuestionAnswering answers the question given as input.
func QuestionAnswering(name string) Config {
	return Config{
		Name:          name,
		Description:   "tool used to answer questions based on the provided input",
		Instruction:   "Answer the following question",
		InputTemplate: "Input: {input}",
		Output:        []core.Field{{Name: "answer", Description: "answer to the question"}},
	}
}

func Summarization(name string) Config {
	return Config{
		Name:          name,
		Description:   "tool used to summarize text",
		Instruction:   "summarize the text",
		InputTemplate: "text to summarize: {input}",
		Output:        []core.Field{{Name: "summary", Description: "the summary of the text"}},
	}
}

func TextGeneration(name string) Config {
	return Config{
		Name:          name,
		Description:   "tool used to generate text",
		Instruction:   "Generate text based on the provided input.",
		InputTemplate: "input: {input}",
		Output:        []core.Field{{Name: "answer", Description: "text generated by the model"}},
	}
}
