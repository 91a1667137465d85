package recognize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteline/scorescribe/internal/config"
	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/pkg/vision"
)

func TestNewEngine(t *testing.T) {
	e, err := NewEngine(config.RecognizerConfig{Provider: "command"})
	require.NoError(t, err)
	assert.IsType(t, &CommandEngine{}, e)

	e, err = NewEngine(config.RecognizerConfig{Provider: "remote", RemoteURL: "http://localhost:9999"})
	require.NoError(t, err)
	assert.IsType(t, &RemoteEngine{}, e)

	_, err = NewEngine(config.RecognizerConfig{Provider: "remote"})
	assert.Error(t, err)

	_, err = NewEngine(config.RecognizerConfig{Provider: "telepathy"})
	assert.Error(t, err)
}

func TestParseCommandOutput(t *testing.T) {
	out := "0.97\t94 #10435 [TAO] Mars 7,948,885\nplain line\n\n0.55\tday 3\n"
	tokens := parseCommandOutput(out)

	var texts []string
	var confs []float64
	for _, tok := range tokens {
		if tok.Text == "\n" {
			continue
		}
		texts = append(texts, tok.Text)
		confs = append(confs, tok.Confidence)
	}
	require.Equal(t, []string{"94 #10435 [TAO] Mars 7,948,885", "plain line", "day 3"}, texts)
	assert.Equal(t, 0.97, confs[0])
	assert.Equal(t, defaultConfidence, confs[1])
	assert.Equal(t, 0.55, confs[2])
}

func TestRemoteEngine_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(vision.AnnotateResponse{ //nolint:errcheck
			Tokens: []vision.Token{
				{Text: "Day 3", Confidence: 0.99},
				{Text: "94 #10435 [TAO] Mars 7,948,885", Confidence: 0.97},
			},
		})
	}))
	defer srv.Close()

	e := NewRemoteEngine(config.RecognizerConfig{Provider: "remote", RemoteURL: srv.URL})
	tokens, err := e.Recognize(context.Background(), []byte("fake-image"))
	require.NoError(t, err)

	var texts []string
	for _, tok := range tokens {
		if tok.Text != "\n" {
			texts = append(texts, tok.Text)
		}
	}
	assert.Equal(t, []string{"Day 3", "94 #10435 [TAO] Mars 7,948,885"}, texts)
	assert.True(t, e.Available())
}

func TestRemoteEngine_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(vision.AnnotateResponse{ //nolint:errcheck
			Tokens: []vision.Token{{Text: "ok", Confidence: 1}},
		})
	}))
	defer srv.Close()

	e := NewRemoteEngine(config.RecognizerConfig{Provider: "remote", RemoteURL: srv.URL})
	e.retry.InitialBackoff = time.Millisecond

	tokens, err := e.Recognize(context.Background(), []byte("fake-image"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.NotEmpty(t, tokens)
}

type stubEngine struct {
	tokens []model.Token
	err    error
	calls  atomic.Int32
}

func (s *stubEngine) Recognize(context.Context, []byte) ([]model.Token, error) {
	s.calls.Add(1)
	return s.tokens, s.err
}

func (s *stubEngine) Available() bool { return true }

func TestPool_RecognizeBatch(t *testing.T) {
	stub := &stubEngine{tokens: []model.Token{{Text: "row", Confidence: 0.9}}}
	p := NewPool(stub, 4, 0)

	images := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	out, err := p.RecognizeBatch(context.Background(), images)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, tokens := range out {
		assert.Equal(t, "row", tokens[0].Text)
	}
	assert.Equal(t, int32(3), stub.calls.Load())
}
