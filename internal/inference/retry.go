package inference

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 4,
		BaseDelay:  2 * time.Second,
		MaxDelay:   15 * time.Second,
	}
}

func (c *Client) ParseIntentWithRetry(ctx context.Context, req ParseRequest) (*ParsedIntent, error) {
	var result *ParsedIntent
	err := c.retryOperation(ctx, "parse_intent", func() error {
		var err error
		result, err = c.ParseIntent(ctx, req)
		return err
	})
	return result, err
}

func (c *Client) EmbedTextsWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := c.retryOperation(ctx, "embed_texts", func() error {
		var err error
		result, err = c.EmbedTexts(ctx, texts)
		return err
	})
	return result, err
}

func (c *Client) ComposeAnswerWithRetry(ctx context.Context, req ComposeRequest) (string, error) {
	var result string
	err := c.retryOperation(ctx, "compose_answer", func() error {
		var err error
		result, err = c.ComposeAnswer(ctx, req)
		return err
	})
	return result, err
}

func (c *Client) retryOperation(ctx context.Context, operation string, fn func() error) error {
	config := DefaultRetryConfig()

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		if attempt == config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operation, config.MaxRetries, err)
		}

		delay := time.Duration(float64(config.BaseDelay) * math.Pow(1.5, float64(attempt)))
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}

		c.logger.WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt + 1,
			"delay":     delay,
			"error":     err.Error(),
		}).Warn("Retrying inference operation")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil
}
