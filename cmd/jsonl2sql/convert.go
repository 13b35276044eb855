package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"jsonl2sql/internal/convert"
	"jsonl2sql/internal/metrics"
	"jsonl2sql/internal/metrics/datadog"
)

func (c *cli) runConvert(ctx context.Context, src, dst string) error {
	if err := c.requireValid(); err != nil {
		return err
	}
	mode, err := convert.ParseMode(c.cfg.Mode)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	stopMetrics := c.startMetrics(ctx, runID)
	defer stopMetrics()

	conv := convert.New(convert.Options{
		Backend:       c.cfg.Backend,
		Driver:        c.cfg.Driver,
		Table:         c.cfg.Table,
		Mode:          mode,
		RunID:         runID,
		Logger:        c.logger,
		NewRepository: c.NewRepository,
	})

	res, err := conv.Convert(ctx, src, dst)
	if err != nil {
		return err
	}

	var merr *multierror.Error
	if errors.As(res.Skips, &merr) {
		for _, e := range merr.Errors {
			c.warn.Printf("skipped: %v", e)
		}
		c.warn.Printf("run=%s rows=%d skipped=%d table=%s", res.RunID, res.Rows, res.Skipped, res.Table)
	}
	return nil
}

// startMetrics installs the configured metrics backend and returns the
// function that flushes and removes it.
//
// A backend that fails to initialize is logged and metrics stay disabled; a
// conversion never fails because of metrics.
func (c *cli) startMetrics(ctx context.Context, runID string) func() {
	m := c.cfg.Metrics
	if m.Backend != "datadog" {
		c.logger.Printf("metrics: disabled (backend=%q)", m.Backend)
		return func() {}
	}
	if c.MetricsFactory == nil {
		c.warn.Printf("metrics: no factory for backend=%s; using nop", m.Backend)
		return func() {}
	}

	tags := datadog.ParseTagsCSV(m.Tags)
	b, err := c.MetricsFactory(ctx, datadog.Options{
		JobName:    m.Job,
		RunID:      runID,
		Tags:       tags,
		FlushEvery: time.Duration(m.FlushSeconds) * time.Second,
	})
	if err != nil {
		c.warn.Printf("metrics: failed to init %s backend: %v; using nop", m.Backend, err)
		return func() {}
	}

	c.logger.Printf("metrics: backend=%s job_name=%s run=%s tags=%v", m.Backend, m.Job, runID, tags)
	metrics.SetBackend(b)
	return func() {
		// Close stops the flush loop and performs the final flush.
		if err := b.Close(); err != nil {
			c.warn.Printf("metrics: close/flush error: %v", err)
		}
		metrics.SetBackend(nil)
	}
}
