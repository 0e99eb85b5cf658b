package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sheetflow/backend/internal/models"
)

// ErrPollTimeout indicates the ingestion job did not reach a terminal
// state within the configured number of status queries.
var ErrPollTimeout = errors.New("ingestion did not finish within the polling window")

// IngestFailedError reports a server-side ingestion failure with the
// reason recorded on the job.
type IngestFailedError struct {
	UploadID string
	Reason   string
}

// Error implements the error interface.
func (e *IngestFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("ingestion failed for upload %s", e.UploadID)
	}
	return fmt.Sprintf("ingestion failed for upload %s: %s", e.UploadID, e.Reason)
}

// Poller watches an ingestion job until it reaches a terminal state.
// Reported progress is mapped into [FloorPercent, CeilPercent] so it can
// continue a transfer progress bar, and it never moves backwards.
type Poller struct {
	client       *Client
	Interval     time.Duration
	MaxAttempts  int
	FloorPercent float64
	CeilPercent  float64
}

// NewPoller returns a poller with the default cadence: one status query
// per second, giving up after 300 attempts.
func NewPoller(c *Client) *Poller {
	return &Poller{
		client:       c,
		Interval:     time.Second,
		MaxAttempts:  300,
		FloorPercent: 40,
		CeilPercent:  95,
	}
}

// Poll queries the upload status until the job completes, fails, the
// context is cancelled, or MaxAttempts is exhausted. onProgress (may be
// nil) receives the mapped, monotonically non-decreasing percentage.
func (p *Poller) Poll(ctx context.Context, projectID, uploadID string, onProgress func(percent float64)) (*models.UploadStatus, error) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	reported := p.FloorPercent
	report := func(percent float64) {
		if percent < reported {
			percent = reported
		}
		reported = percent
		if onProgress != nil {
			onProgress(percent)
		}
	}

	path := fmt.Sprintf("/api/projects/%s/upload/status/%s", projectID, uploadID)
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var status models.UploadStatus
		if err := p.client.doJSON(ctx, http.MethodGet, path, nil, &status); err != nil {
			// Transient query failures consume an attempt but keep polling.
			continue
		}

		switch status.Status {
		case models.FileStatusCompleted:
			report(p.CeilPercent)
			return &status, nil
		case models.FileStatusFailed:
			return &status, &IngestFailedError{UploadID: uploadID, Reason: status.Error}
		default:
			report(p.mapProgress(status.Progress))
		}
	}

	return nil, ErrPollTimeout
}

// mapProgress scales the job's 0-100 progress into the poller's band.
func (p *Poller) mapProgress(jobPercent float64) float64 {
	if jobPercent < 0 {
		jobPercent = 0
	}
	if jobPercent > 100 {
		jobPercent = 100
	}
	return p.FloorPercent + (p.CeilPercent-p.FloorPercent)*jobPercent/100
}
