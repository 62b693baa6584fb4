// Package llm scores answers with an OpenAI-compatible chat model, for
// deployments that run without the remote verification backend.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"context-hunter/internal/domain"

	openai "github.com/sashabaranov/go-openai"
)

// MeaningSource resolves a question ID to its record including the canonical
// meaning. The postgres question bank satisfies this.
type MeaningSource interface {
	Lookup(ctx context.Context, questionID string) (domain.Question, error)
}

// AttemptRecorder persists per-question attempt statistics.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, questionID string, correct bool) error
}

// Verifier implements game.Verifier by asking the model to compare the
// player's paraphrase against the canonical meaning.
type Verifier struct {
	api       *openai.Client
	model     string
	questions MeaningSource
	stats     AttemptRecorder // optional
}

// New creates a verifier. baseURL may point at any OpenAI-compatible server;
// stats may be nil when attempt tracking is not wanted.
func New(baseURL, apiKey, modelName string, questions MeaningSource, stats AttemptRecorder) *Verifier {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Verifier{
		api:       openai.NewClientWithConfig(config),
		model:     modelName,
		questions: questions,
		stats:     stats,
	}
}

type modelVerdict struct {
	IsCorrect  bool   `json:"is_correct"`
	Similarity int    `json:"similarity_score"`
	Feedback   string `json:"feedback"`
}

// VerifyAnswer judges the answer and returns the verdict. The canonical
// answer is attached only when the submission was incorrect, matching the
// remote backend's contract.
func (v *Verifier) VerifyAnswer(ctx context.Context, _ domain.Credentials, questionID, answer string) (domain.Verdict, error) {
	question, err := v.questions.Lookup(ctx, questionID)
	if err != nil {
		return domain.Verdict{}, err
	}

	resp, err := v.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a strict evaluator. Output JSON only."},
			{Role: openai.ChatMessageRoleUser, Content: buildSimilarityPrompt(question.Meaning, answer)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Verdict{}, fmt.Errorf("LLM returned no choices")
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return domain.Verdict{}, err
	}

	if v.stats != nil {
		if err := v.stats.RecordAttempt(ctx, questionID, verdict.IsCorrect); err != nil {
			log.Printf("record attempt for %s: %v", questionID, err)
		}
	}

	if !verdict.IsCorrect {
		verdict.CorrectAnswer = question.Meaning
	}
	return verdict, nil
}

func buildSimilarityPrompt(meaning, answer string) string {
	return fmt.Sprintf(`Compare the meaning of the two sentences below.

1. Correct Meaning: %q
2. User Answer: %q

Are they semantically similar in the given context?
Even if the words are different, if the core meaning is the same, it is Correct.
If the meaning is opposite or irrelevant, it is Incorrect.

Return JSON only:
{
    "is_correct": boolean,
    "similarity_score": integer (0-100),
    "feedback": "Short feedback (1 sentence)"
}`, meaning, answer)
}

func parseVerdict(raw string) (domain.Verdict, error) {
	var mv modelVerdict
	if err := json.Unmarshal([]byte(raw), &mv); err != nil {
		return domain.Verdict{}, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	return domain.Verdict{
		IsCorrect:  mv.IsCorrect,
		Similarity: domain.ClampSimilarity(mv.Similarity),
		Feedback:   mv.Feedback,
	}, nil
}
