package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/pkg/tracing"
	"github.com/snow-ghost/skillforge/runtime"
	"github.com/snow-ghost/skillforge/skills"
)

const teacherInstruction = "You are a helpful assistant."

const diagnosisIntro = `A prompt is a paragraph that describes the expected behaviour and instructs a model to produce a specific output. The prompt is placed before the input text and the model produces the output from both:
output = model(concatenate(prompt, input))
A model produces wrong output when the prompt is vague or does not describe the task precisely. We will refine a prompt together in two steps.

## Step 1
You get the current prompt, the full template showing how the prompt is combined with the input, and examples produced with this prompt. Every example holds the input, the output of the model, and the user feedback. Decide whether the prompt describes the task of these examples precisely and suggest changes.

## Step 2
Review your reasoning from step 1 and write a new, improved prompt.
`

const diagnosisInstructions = `## Instructions
The user feedback shows that the model produced wrong output for some of these examples. The prompt may be misleading or imprecise.

Examine every example. Treat the user feedback as ground truth; the prompt may be wrong and need changes.
For each example, reason along this template:

### Example <id>
Input: <input>
Output: <output>
Feedback: <feedback>
Is the output correct according to the feedback: <yes or no, and your reasoning>
To output the correct answer, is it necessary to edit the prompt: <yes or no, and your reasoning>
If yes, provide detailed analysis and actionable suggestions to edit the prompt: <analysis and suggestions>
If yes, and there is knowledge to learn to answer this example, provide the knowledge: <knowledge>
`

const rewriteMessage = `Now review your reasoning in Step 1 carefully and help with Step 2: refining the prompt.
## Current prompt
%s

## Instructions
- The new prompt should be concise and direct.
- The new prompt should describe the task precisely and address the points raised in the user feedback.
- Include a few examples in the prompt that show inputs and outputs following the full template.
- Reply only with the prompt. Do not include other text.
`

// PEOptimization runs the two-stage prompt optimization on teacher: a
// diagnosis of the failing examples, then a rewrite of the instruction based
// on that diagnosis. It returns the sanitized new instruction and the
// diagnosis text without changing the skill.
func (a *Agent) PEOptimization(ctx context.Context, skill *skills.Skill, examples []string, teacher core.Runtime) (string, string, error) {
	return a.optimize(ctx, skill, examples, teacher, "")
}

func (a *Agent) optimize(ctx context.Context, skill *skills.Skill, examples []string, teacher core.Runtime, experience string) (string, string, error) {
	ctx, span := a.obs.Tracer().StartSkillSpan(ctx, "optimize", skill.Name)
	defer span.End()

	current := skill.Instruction()
	diagnosis, err := teacher.RecordToRecord(ctx,
		core.Record{"input": diagnosisMessage(skill, current, examples, experience)},
		core.Templates{
			Instruction: teacherInstruction,
			Input:       "{input}",
			Output:      []core.Field{{Name: "reasoning", Description: "reasoning from the assistant"}},
		})
	if err != nil {
		tracing.RecordSpanError(span, err)
		return "", "", err
	}
	reasoning := field(diagnosis, "reasoning")

	rewrite, err := teacher.RecordToRecord(ctx,
		core.Record{"input": fmt.Sprintf(rewriteMessage, current)},
		core.Templates{
			Instruction: core.Escape(reasoning),
			Input:       "{input}",
			Output:      []core.Field{{Name: "new_prompt", Description: "new prompt"}},
		})
	if err != nil {
		tracing.RecordSpanError(span, err)
		return "", "", err
	}

	instruction := strings.TrimSpace(field(rewrite, "new_prompt"))
	tracing.RecordSpanSuccess(span)
	return core.EscapeUnknown(instruction, skill.KnownFields()), reasoning, nil
}

func diagnosisMessage(skill *skills.Skill, current string, examples []string, experience string) string {
	var b strings.Builder
	if experience != "" {
		b.WriteString("## Experience from previous iterations\n")
		b.WriteString(strings.TrimSpace(experience))
		b.WriteString("\n\n")
	}
	b.WriteString(diagnosisIntro)
	b.WriteString("## Current Prompt\n")
	b.WriteString(current)
	b.WriteString("\n\n## Full Template\n{current prompt}\n")
	b.WriteString(skill.InputTemplate)
	b.WriteString("\n")
	b.WriteString(core.RenderOutputLine(skill.Output, placeholders(skill.Output)))
	b.WriteString("\n## Examples\n")
	b.WriteString(strings.Join(examples, "\n"))
	b.WriteString("\n")
	b.WriteString(diagnosisInstructions)
	return b.String()
}

// field reads a decoded field, or the raw completion when decoding fell back.
func field(rec core.Record, name string) string {
	if _, ok := rec[name]; ok {
		return rec.String(name)
	}
	return rec.String(runtime.FallbackField)
}

func placeholders(fields []core.Field) core.Record {
	rec := make(core.Record, len(fields))
	for _, f := range fields {
		rec[f.Name] = "{" + f.Name + "}"
	}
	return rec
}
