package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// DefaultRatePerSecond throttles recognizer calls.
const DefaultRatePerSecond = 20

// HTTPConfig configures the HTTP recognizer.
type HTTPConfig struct {
	// Endpoint receives POST {"text": "..."} and answers with a JSON array
	// of {"word", "entity_group"} objects.
	Endpoint string

	// RatePerSecond limits outgoing calls (default: 20)
	RatePerSecond float64

	// Breaker overrides the default circuit breaker.
	Breaker *docerrors.CircuitBreaker
}

type recognizeRequest struct {
	Text string `json:"text"`
}

type recognizedEntity struct {
	Word        string  `json:"word"`
	EntityGroup string  `json:"entity_group"`
	Score       float64 `json:"score,omitempty"`
}

// HTTPRecognizer calls a token-classification service over HTTP.
type HTTPRecognizer struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *docerrors.CircuitBreaker
}

var _ Recognizer = (*HTTPRecognizer)(nil)

// NewHTTPRecognizer creates an HTTP recognizer. Deadlines come from the
// caller's context.
func NewHTTPRecognizer(cfg HTTPConfig) *HTTPRecognizer {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRatePerSecond
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = docerrors.NewCircuitBreaker("recognizer",
			docerrors.WithMaxFailures(5),
			docerrors.WithResetTimeout(30*time.Second))
	}
	return &HTTPRecognizer{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   &http.Client{},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		breaker:  breaker,
	}
}

// Recognize implements Recognizer. Every failure, an open circuit
// included, is returned as a collaborator error.
func (r *HTTPRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, docerrors.Collaborator("recognizer", err)
	}

	entities, err := docerrors.CircuitExecute(r.breaker, func() ([]Entity, error) {
		return r.call(ctx, text)
	})
	if err != nil {
		return nil, docerrors.Collaborator("recognizer", err)
	}
	return entities, nil
}

func (r *HTTPRecognizer) call(ctx context.Context, text string) ([]Entity, error) {
	body, err := json.Marshal(recognizeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("recognizer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var raw []recognizedEntity
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([]Entity, 0, len(raw))
	for _, e := range raw {
		out = append(out, Entity{Name: e.Word, Category: ParseCategory(e.EntityGroup)})
	}
	return out, nil
}

// Breaker returns the recognizer's circuit breaker.
func (r *HTTPRecognizer) Breaker() *docerrors.CircuitBreaker {
	return r.breaker
}
