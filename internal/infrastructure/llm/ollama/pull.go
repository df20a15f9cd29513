package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
	"github.com/kirillkom/ai-text-detector/internal/core/ports"
)

type pullStatus struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s pullStatus) progress() domain.LoadProgress {
	p := domain.LoadProgress{Text: s.Status}
	if s.Total > 0 {
		p.Fraction = domain.Fraction(float64(s.Completed) / float64(s.Total))
	}
	return p
}

// pull streams /api/pull and forwards each status line as progress.
func (c *Client) pull(ctx context.Context, model string, onProgress ports.ProgressFunc) error {
	body, err := c.postStream(ctx, "/api/pull", map[string]any{"model": model, "stream": true}, "pull")
	if err != nil {
		return err
	}
	defer body.Close()

	decoder := json.NewDecoder(body)
	sawSuccess := false
	for {
		var status pullStatus
		if err := decoder.Decode(&status); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("ollama pull: read stream: %w", err)
		}
		if status.Error != "" {
			return fmt.Errorf("ollama pull: %s", status.Error)
		}
		if status.Status == "success" {
			sawSuccess = true
		}
		onProgress(status.progress())
	}
	if !sawSuccess {
		return fmt.Errorf("ollama pull: stream ended before success: %w", io.ErrUnexpectedEOF)
	}
	return nil
}
