// Package broadcast delivers one message to every registered user, one send at
// a time, tolerating individual delivery failures.
package broadcast

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"contact_relay_bot/internal/domain"
	"contact_relay_bot/internal/logging"
)

// Sender delivers a plain message to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Audience streams the user ids to broadcast to.
type Audience interface {
	Each(ctx context.Context, fn func(userID int64) error) error
}

// Report summarizes a finished broadcast.
type Report struct {
	Attempted int
	Delivered int
}

// Engine paces sends through a limiter shared by every broadcast it runs, so
// overlapping broadcasts never exceed the configured send rate together.
type Engine struct {
	audience Audience
	sender   Sender
	limiter  *rate.Limiter
	logger   *logrus.Entry
}

// NewEngine constructs an Engine that waits delay between two sends. A zero
// delay disables pacing.
func NewEngine(audience Audience, sender Sender, delay time.Duration, logger *logrus.Entry) *Engine {
	logger = logging.Component(logger, "broadcast")

	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}

	return &Engine{
		audience: audience,
		sender:   sender,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// Broadcast sends text to every registered user. Delivery failures are counted
// as non-deliveries and never stop the loop. The returned error is non-nil only
// for an empty message, an audience read failure or context cancellation; the
// report then covers the sends made so far.
func (e *Engine) Broadcast(ctx context.Context, text string) (Report, error) {
	if strings.TrimSpace(text) == "" {
		return Report{}, domain.NewUsageError("/broadcast <text>")
	}
	if e == nil || e.audience == nil || e.sender == nil {
		return Report{}, errors.New("broadcast engine is not initialized")
	}
	if ctx == nil {
		return Report{}, errors.New("context is required")
	}

	started := time.Now()
	var report Report

	err := e.audience.Each(ctx, func(userID int64) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		report.Attempted++
		if err := e.sender.SendText(ctx, userID, text); err != nil {
			e.logger.WithFields(logging.Fields{
				"event":   "broadcast_delivery_failed",
				"user_id": userID,
			}).WithError(err).Debug("broadcast delivery failed")
			return nil
		}

		report.Delivered++
		return nil
	})

	fields := logging.Fields{
		"event":       "broadcast_finished",
		"attempted":   report.Attempted,
		"delivered":   report.Delivered,
		"duration_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		e.logger.WithFields(fields).WithError(err).Warn("broadcast aborted")
		return report, err
	}

	e.logger.WithFields(fields).Info("broadcast finished")
	return report, nil
}
