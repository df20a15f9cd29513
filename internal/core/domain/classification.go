package domain

import (
	"errors"
	"strings"
	"time"
)

// Label is the closed set of classification outcomes.
type Label string

const (
	LabelAIGenerated  Label = "ai_generated"
	LabelHumanWritten Label = "human_written"
	LabelUnknown      Label = "unknown"
)

func (l Label) Valid() bool {
	switch l {
	case LabelAIGenerated, LabelHumanWritten, LabelUnknown:
		return true
	default:
		return false
	}
}

// Presentation is the display wording the popup shows for a label.
type Presentation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (l Label) Presentation() Presentation {
	switch l {
	case LabelAIGenerated:
		return Presentation{Title: "AI-Generated", Description: "This text appears to be generated by AI."}
	case LabelHumanWritten:
		return Presentation{Title: "Human-Written", Description: "This text appears to be written by a human."}
	default:
		return Presentation{Title: "Uncertain", Description: "Could not determine classification."}
	}
}

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PromptPair is the instruction/query pair sent to the model for one text.
type PromptPair struct {
	Instruction string
	Query       string
}

func (p PromptPair) Messages() []ChatMessage {
	return []ChatMessage{
		{Role: RoleSystem, Content: p.Instruction},
		{Role: RoleUser, Content: p.Query},
	}
}

type GenerationParams struct {
	Temperature       float64
	MaxTokens         int
	RepetitionPenalty float64
	Stop              []string
}

// ClassificationRequest is immutable once built; construct it with NewClassificationRequest.
type ClassificationRequest struct {
	text   string
	params GenerationParams
}

func NewClassificationRequest(text string, params GenerationParams) (ClassificationRequest, error) {
	if strings.TrimSpace(text) == "" {
		return ClassificationRequest{}, WrapError(ErrEmptyInput, "build classification request", errors.New("text is blank"))
	}
	params.Stop = append([]string(nil), params.Stop...)
	return ClassificationRequest{text: text, params: params}, nil
}

func (r ClassificationRequest) Text() string { return r.text }

func (r ClassificationRequest) Params() GenerationParams {
	out := r.params
	out.Stop = append([]string(nil), r.params.Stop...)
	return out
}

// RawReply is the untouched text a model produced for one request.
type RawReply string

// Detection is a completed classification of one text.
type Detection struct {
	ID          string        `json:"id"`
	Label       Label         `json:"label"`
	Text        string        `json:"text"`
	Raw         RawReply      `json:"-"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"-"`
}
