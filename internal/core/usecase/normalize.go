package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
)

var (
	// openingOutputTag is the wrapper the instruction asks the model to emit.
	openingOutputTag = regexp.MustCompile(`(?i)^<` + regexp.QuoteMeta(outputTag) + `>`)
	tokenDelimiter   = regexp.MustCompile(`[\s_<>]`)
)

// Normalize maps a raw model reply onto the closed label set. It never fails.
// Only the first token counts, even when it is empty: "_human" is unknown.
func Normalize(raw domain.RawReply) domain.Label {
	text := strings.TrimSpace(string(raw))
	text = openingOutputTag.ReplaceAllLiteralString(text, "")
	token := strings.ToLower(tokenDelimiter.Split(text, 2)[0])

	switch {
	case token == "ai" || strings.HasPrefix(token, "ai_") || strings.HasPrefix(token, "ai-"):
		return domain.LabelAIGenerated
	case token == "human" || strings.HasPrefix(token, "human_") || strings.HasPrefix(token, "human-"):
		return domain.LabelHumanWritten
	default:
		return domain.LabelUnknown
	}
}
