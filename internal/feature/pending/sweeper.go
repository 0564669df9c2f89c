package pending

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"contact_relay_bot/internal/logging"
)

// Sweeper periodically purges expired actions so silent requesters do not
// leave entries behind.
type Sweeper struct {
	cron   *cron.Cron
	table  *Table
	logger *logrus.Entry
}

// NewSweeper schedules table.Sweep every interval (rounded to whole seconds,
// minimum one second).
func NewSweeper(table *Table, interval time.Duration, logger *logrus.Entry) (*Sweeper, error) {
	if table == nil {
		return nil, errors.New("pending table is required")
	}
	if interval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}
	logger = logging.Component(logger, "pending")

	s := &Sweeper{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		table:  table,
		logger: logger,
	}

	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), s.run); err != nil {
		return nil, fmt.Errorf("schedule pending sweep: %w", err)
	}

	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) run() {
	removed := s.table.Sweep()
	if removed == 0 {
		return
	}

	s.logger.WithFields(logging.Fields{
		"event":   "pending_expired",
		"removed": removed,
	}).Debug("dropped expired pending actions")
}
