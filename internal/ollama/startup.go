package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotRunning is returned by EnsureModel when the server is unreachable.
var ErrNotRunning = errors.New("ollama is not running; start it with: ollama serve")

// EnsureModel checks that Ollama is running and that model is available,
// pulling it when missing. Pull progress is logged at info level whenever the
// status line changes.
func EnsureModel(ctx context.Context, c *Client, model string, logger *slog.Logger) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("%w (%s)", ErrNotRunning, c.BaseURL())
	}

	present, err := c.HasModel(ctx, model)
	if err != nil {
		return fmt.Errorf("checking model %s: %w", model, err)
	}
	if present {
		logger.Debug("ollama model ready", "model", model)
		return nil
	}

	logger.Info("pulling ollama model", "model", model)
	var last string
	err = c.PullModel(ctx, model, func(p PullProgress) {
		if p.Status == last {
			return
		}
		last = p.Status
		if p.Total > 0 {
			logger.Info("pull progress", "model", model, "status", p.Status,
				"percent", int(float64(p.Completed)/float64(p.Total)*100))
		} else {
			logger.Info("pull progress", "model", model, "status", p.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	logger.Info("ollama model ready", "model", model)
	return nil
}
