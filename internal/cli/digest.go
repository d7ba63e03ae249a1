package cli

import (
	"context"
	"fmt"

	"bullwatch/internal/logger"
	"bullwatch/internal/models"
	"bullwatch/internal/report"

	"github.com/robfig/cron/v3"
)

// scoreSource is where the digest reads today's scores.
type scoreSource interface {
	TodayBullish(ctx context.Context) ([]models.BullishScore, error)
}

// Digest prints the top bullish scores on a cron schedule while watch runs.
type Digest struct {
	cron *cron.Cron
	src  scoreSource
	top  int
	emit func(md string)
	ctx  context.Context
}

// NewDigest creates a digest. Schedules use six fields, seconds first.
func NewDigest(ctx context.Context, src scoreSource, top int, emit func(md string)) *Digest {
	return &Digest{
		cron: cron.New(cron.WithSeconds()),
		src:  src,
		top:  top,
		emit: emit,
		ctx:  ctx,
	}
}

// Register schedules the digest on spec.
func (d *Digest) Register(spec string) error {
	if _, err := d.cron.AddFunc(spec, d.RunNow); err != nil {
		return fmt.Errorf("register digest %q: %w", spec, err)
	}
	return nil
}

// Start starts the scheduler.
func (d *Digest) Start() {
	d.cron.Start()
	logger.Infof("digest: scheduler started")
}

// Stop stops the scheduler and waits for a running digest to finish.
func (d *Digest) Stop() {
	<-d.cron.Stop().Done()
	logger.Infof("digest: scheduler stopped")
}

// RunNow loads today's scores and emits the ranking once.
func (d *Digest) RunNow() {
	scores, err := d.src.TodayBullish(d.ctx)
	if err != nil {
		logger.Errorf("digest: loading scores: %v", err)
		return
	}
	d.emit(report.BullishMarkdown(scores, d.top))
}
