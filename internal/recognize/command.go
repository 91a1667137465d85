package recognize

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/kiteline/scorescribe/internal/model"
)

const defaultConfidence = 0.9

// CommandEngine shells out to a local OCR binary. The image is written to
// stdin; stdout is one token per line, optionally prefixed with a confidence
// value and a tab.
type CommandEngine struct {
	binPath string
}

// NewCommandEngine creates a CommandEngine. If binPath is empty, "tesseract"
// is used.
func NewCommandEngine(binPath string) *CommandEngine {
	if binPath == "" {
		binPath = "tesseract"
	}
	return &CommandEngine{binPath: binPath}
}

func (e *CommandEngine) Recognize(ctx context.Context, image []byte) ([]model.Token, error) {
	cmd := exec.CommandContext(ctx, e.binPath, "-", "-")
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "recognize: %s failed: %s", e.binPath, stderr.String())
	}
	return parseCommandOutput(stdout.String()), nil
}

// Available checks that the binary is on PATH.
func (e *CommandEngine) Available() bool {
	_, err := exec.LookPath(e.binPath)
	return err == nil
}

// parseCommandOutput reads "confidence<TAB>text" lines, falling back to a
// default confidence for bare-text lines.
func parseCommandOutput(out string) []model.Token {
	var tokens []model.Token
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		conf := defaultConfidence
		text := line
		if before, after, found := strings.Cut(line, "\t"); found {
			if v, err := strconv.ParseFloat(strings.TrimSpace(before), 64); err == nil && v >= 0 && v <= 1 {
				conf = v
				text = after
			}
		}
		tokens = append(tokens, model.Token{Text: text, Confidence: conf})
		tokens = append(tokens, model.Token{Text: "\n", Confidence: 1})
	}
	return tokens
}
