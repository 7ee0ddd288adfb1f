package synth

import (
	"context"
	"strings"

	"github.com/synthloom/core/internal/application/inference"
	"github.com/synthloom/core/internal/domain"
)

// InferenceTaskGenerator is the default TaskGenerator: it asks the
// backend's task-generation slot for one task in the free-form contract
// ParseGeneratedTask expects (spec §6: "its prompt engineering is not
// specified, only its wire contract").
type InferenceTaskGenerator struct {
	client   *inference.Client
	slotID   int
}

// NewInferenceTaskGenerator creates a generator pinned to slotID.
func NewInferenceTaskGenerator(client *inference.Client, slotID int) *InferenceTaskGenerator {
	return &InferenceTaskGenerator{client: client, slotID: slotID}
}

// GenerateTask asks the backend for one task at difficulty, optionally
// steering it toward targetCategory when the curriculum flagged a
// weakness (spec §4.12).
func (g *InferenceTaskGenerator) GenerateTask(ctx context.Context, difficulty int, targetCategory domain.Category) (string, error) {
	prompt := buildTaskGenPrompt(difficulty, targetCategory)

	result := g.client.GenerateWithRetry(ctx, inference.GenerateRequest{
		Prompt:      prompt,
		Temperature: 0.9,
		MaxTokens:   400,
		SlotID:      g.slotID,
		CachePrompt: false,
	})
	if result.Content == inference.NoContentSentinel {
		return "", domain.NewDomainError(domain.ErrCodeInvalidState, "task generator backend unavailable", nil)
	}
	return result.Content, nil
}

func buildTaskGenPrompt(difficulty int, targetCategory domain.Category) string {
	var b strings.Builder
	b.WriteString("Generate one small Python coding task at difficulty ")
	b.WriteString(difficultyWord(difficulty))
	b.WriteString(".\n\n")
	if targetCategory != "" && targetCategory != domain.CategoryGeneral {
		b.WriteString("Favor the category: ")
		b.WriteString(string(targetCategory))
		b.WriteString(".\n\n")
	}
	b.WriteString("Respond in exactly this format:\n\n")
	b.WriteString("Category: <one of string-manipulation, math, list-ops, dict-ops, validation, parsing, code-pattern, code-error, code-logic, general>\n")
	b.WriteString("<one paragraph describing a solve(...) function to implement>\n\n")
	b.WriteString("Test cases:\n")
	b.WriteString("- solve(<input literal>) -> <expected output literal>\n")
	b.WriteString("(repeat for 2 to 8 test cases, using Python literal syntax for both sides)\n")
	return b.String()
}

func difficultyWord(difficulty int) string {
	switch {
	case difficulty <= 1:
		return "1 (beginner)"
	case difficulty >= 5:
		return "5 (expert)"
	default:
		return itoa(difficulty)
	}
}
