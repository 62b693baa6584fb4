package memory

import (
	"context"
	"strings"

	"context-hunter/internal/domain"
)

// QuestionLookup resolves a question ID to its full record including the
// canonical meaning.
type QuestionLookup interface {
	Lookup(ctx context.Context, questionID string) (domain.Question, error)
}

// correctThreshold is the similarity above which an answer counts as correct.
const correctThreshold = 80

// NaiveVerifier scores answers by plain string similarity against the
// canonical meaning. It is the no-dependency fallback for demos and tests;
// real deployments use the backend or the LLM verifier instead.
type NaiveVerifier struct {
	questions QuestionLookup
}

func NewNaiveVerifier(questions QuestionLookup) *NaiveVerifier {
	return &NaiveVerifier{questions: questions}
}

func (v *NaiveVerifier) VerifyAnswer(ctx context.Context, _ domain.Credentials, questionID, answer string) (domain.Verdict, error) {
	question, err := v.questions.Lookup(ctx, questionID)
	if err != nil {
		return domain.Verdict{}, err
	}

	similarity := similarityScore(normalize(answer), normalize(question.Meaning))
	verdict := domain.Verdict{
		IsCorrect:  similarity >= correctThreshold,
		Similarity: similarity,
	}
	if !verdict.IsCorrect {
		verdict.CorrectAnswer = question.Meaning
	}
	return verdict, nil
}

// normalize strips whitespace and case so the comparison sees only content.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "")
}

// similarityScore returns 2*LCS/(len(a)+len(b)) scaled to [0,100], the same
// shape as difflib's ratio.
func similarityScore(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return domain.ClampSimilarity(2 * lcs * 100 / (len(ra) + len(rb)))
}
