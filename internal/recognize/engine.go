// Package recognize turns screenshot bytes into text tokens. Engines are
// swappable; reconciliation and comparison never call them directly.
package recognize

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/kiteline/scorescribe/internal/config"
	"github.com/kiteline/scorescribe/internal/model"
)

// Engine produces (text, confidence) tokens from image bytes.
type Engine interface {
	Recognize(ctx context.Context, image []byte) ([]model.Token, error)
	// Available reports whether the engine can currently take work. When
	// false, callers degrade to manual entry.
	Available() bool
}

// NewEngine creates an Engine based on config.
func NewEngine(cfg config.RecognizerConfig) (Engine, error) {
	switch cfg.Provider {
	case "command", "":
		return NewCommandEngine(cfg.CommandPath), nil
	case "remote":
		if cfg.RemoteURL == "" {
			return nil, eris.New("recognize: remote provider requires remote_url")
		}
		return NewRemoteEngine(cfg), nil
	default:
		return nil, eris.Errorf("recognize: unknown provider %q", cfg.Provider)
	}
}
