package usecase

import "github.com/kirillkom/ai-text-detector/internal/core/domain"

const outputTag = "o"

// classificationInstruction is pinned; changing it changes model behaviour.
const classificationInstruction = `You are a classifier working on a problem described in task_description XML block:
<task_description>Classify user-generated text content to detect whether it was likely generated by AI or written by a human</task_description>
Classify the input into one of the available classes, each class has a name in class_name and description in class_description XML block:

<class_name>ai_generated</class_name>
<class_description>Content that shows signs of AI generation: overly formal or generic language, repetitive patterns, lack of personal voice, artificial enthusiasm, typical AI writing markers like 'delve', 'tapestry', 'landscape', 'paradigm shift', excessive politeness, corporate-speak in informal contexts, perfectly structured responses without natural flow, or absence of casual mistakes</class_description>

<class_name>human_written</class_name>
<class_description>Content that appears genuinely human-written: natural conversational flow, authentic personal voice, casual mistakes or typos, informal language, slang, abbreviations (lol, wtf, ngl), specific personal details, genuine emotion, creative expression, internet culture references, or casual grammar that lacks typical AI patterns</class_description>

Write the name of the predicted class inside output XML block
For example, if the input matches class test_output, write
<` + outputTag + `>test_output</` + outputTag + `>`

const (
	queryPrefix = "Now for the real task, classify the following example\n<question>"
	querySuffix = "</question>"
)

// BuildPrompt embeds text verbatim; length policy belongs to the generation budget.
func BuildPrompt(text string) domain.PromptPair {
	return domain.PromptPair{
		Instruction: classificationInstruction,
		Query:       queryPrefix + text + querySuffix,
	}
}
