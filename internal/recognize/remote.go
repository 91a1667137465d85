package recognize

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kiteline/scorescribe/internal/config"
	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/internal/resilience"
	"github.com/kiteline/scorescribe/pkg/vision"
)

// RemoteEngine calls a vision OCR service, with retry for transient failures
// and a circuit breaker that degrades the system to manual entry while the
// service is down.
type RemoteEngine struct {
	client  vision.Client
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	timeout time.Duration
}

func NewRemoteEngine(cfg config.RecognizerConfig, opts ...vision.Option) *RemoteEngine {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteEngine{
		client:  vision.NewClient(cfg.RemoteURL, cfg.RemoteKey, opts...),
		breaker: resilience.NewBreaker(resilience.BreakerConfig{}),
		retry:   resilience.DefaultRetryConfig(),
		timeout: timeout,
	}
}

func (e *RemoteEngine) Recognize(ctx context.Context, image []byte) ([]model.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := resilience.Call(ctx, e.breaker, func(ctx context.Context) (*vision.AnnotateResponse, error) {
		return resilience.Retry(ctx, e.retry, "vision.annotate", func(ctx context.Context) (*vision.AnnotateResponse, error) {
			resp, err := e.client.Annotate(ctx, image)
			var apiErr *vision.APIError
			if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
				return nil, resilience.NewTransientError(err, apiErr.StatusCode)
			}
			return resp, err
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "recognize: remote annotate")
	}

	tokens := make([]model.Token, 0, len(resp.Tokens))
	for _, tok := range resp.Tokens {
		tokens = append(tokens, model.Token{Text: tok.Text, Confidence: tok.Confidence})
		tokens = append(tokens, model.Token{Text: "\n", Confidence: 1})
	}
	return tokens, nil
}

// Available reports whether the circuit currently admits calls.
func (e *RemoteEngine) Available() bool {
	return e.breaker.Available()
}
