// Package backendhttp talks to the Context Hunter backend: question batches
// and LLM-scored answer verification.
package backendhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"context-hunter/internal/domain"
)

const defaultTimeout = 15 * time.Second

// Client implements game.QuestionSource and game.Verifier against the
// backend's REST API. Credentials are passed per call, never read from
// ambient state.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the backend at baseURL. timeout bounds every
// request; zero selects a default.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type questionsResponse struct {
	Questions []questionPayload `json:"questions"`
}

type questionPayload struct {
	ID            string  `json:"id"`
	Encoded       string  `json:"encoded"`
	Category      string  `json:"category"`
	CorrectCount  int     `json:"correct_count"`
	TotalAttempts int     `json:"total_attempts"`
	SuccessRate   float64 `json:"success_rate"`
}

// FetchQuestions requests a batch for the given difficulty/category. The
// backend may return fewer than Limit; an empty list is a valid response.
func (c *Client) FetchQuestions(ctx context.Context, creds domain.Credentials, query domain.QuestionQuery) ([]domain.Question, error) {
	params := url.Values{}
	params.Set("difficulty", strconv.Itoa(query.Difficulty))
	if query.Category != "" {
		params.Set("category", query.Category)
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}

	var resp questionsResponse
	if err := c.do(ctx, creds, http.MethodGet, "/api/questions?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}

	questions := make([]domain.Question, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		questions = append(questions, domain.Question{
			ID:            q.ID,
			Encoded:       q.Encoded,
			Category:      q.Category,
			CorrectCount:  q.CorrectCount,
			TotalAttempts: q.TotalAttempts,
			SuccessRate:   q.SuccessRate,
		})
	}
	return questions, nil
}

type verifyRequest struct {
	QuestionID string `json:"questionId"`
	UserAnswer string `json:"userAnswer"`
}

type verifyResponse struct {
	IsCorrect bool `json:"isCorrect"`
	// Similarity is a pointer so a missing field is distinguishable from 0.
	Similarity    *int   `json:"similarity"`
	CorrectAnswer string `json:"correctAnswer"`
	Feedback      string `json:"feedback"`
}

// VerifyAnswer submits the candidate answer for scoring. Absent similarity
// defaults to 0; out-of-range values are clamped to [0,100].
func (c *Client) VerifyAnswer(ctx context.Context, creds domain.Credentials, questionID, answer string) (domain.Verdict, error) {
	var resp verifyResponse
	req := verifyRequest{QuestionID: questionID, UserAnswer: answer}
	if err := c.do(ctx, creds, http.MethodPost, "/api/verify", req, &resp); err != nil {
		return domain.Verdict{}, fmt.Errorf("verify answer: %w", err)
	}

	similarity := 0
	if resp.Similarity != nil {
		similarity = domain.ClampSimilarity(*resp.Similarity)
	}
	return domain.Verdict{
		IsCorrect:     resp.IsCorrect,
		Similarity:    similarity,
		CorrectAnswer: resp.CorrectAnswer,
		Feedback:      resp.Feedback,
	}, nil
}

func (c *Client) do(ctx context.Context, creds domain.Credentials, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return fmt.Errorf("backend returned non-JSON content type %q", ct)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
