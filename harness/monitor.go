package harness

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/grafana/dskit/backoff"

	"github.com/msykam-r7/policy-content/nexpose"
)

// scanAPI is the slice of the console client the monitor needs.
type scanAPI interface {
	ScanStatus(ctx context.Context, scanID int) (string, error)
	ScanDetailJSON(ctx context.Context, scanID int) (nexpose.ScanDetail, error)
}

// reportAPI is the slice used while waiting for report generation.
type reportAPI interface {
	ReportSummary(ctx context.Context, cfgID int) (nexpose.ReportConfigSummary, error)
}

// ErrNoLiveHosts marks a scan that finished without reaching any target.
// The report for such a scan is empty and validating it would pass
// vacuously, so the suite must treat it as "no data yet" rather than a
// result.
var ErrNoLiveHosts = errors.New("scan finished with no live hosts")

// ScanFailedError reports a scan that reached a terminal failure status.
type ScanFailedError struct {
	ScanID int
	Status string
}

func (e *ScanFailedError) Error() string {
	return fmt.Sprintf("scan %d ended with status %q", e.ScanID, e.Status)
}

// TimeoutError reports a monitor that ran out of budget.
type TimeoutError struct {
	ScanID     int
	Elapsed    time.Duration
	LastStatus string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scan %d still %q after %s", e.ScanID, e.LastStatus, e.Elapsed.Round(time.Second))
}

// Monitor polls a scan until it reaches a terminal state. Polling is
// adaptive: the fast interval for the first stretch, then a slower cadence
// once the scan has clearly settled into a long run.
type Monitor struct {
	scans   scanAPI
	reports reportAPI

	// FastInterval is the initial poll cadence, SlowInterval the cadence
	// after SwitchAfter of elapsed scan time.
	FastInterval time.Duration
	SlowInterval time.Duration
	SwitchAfter  time.Duration
	// Timeout bounds the whole wait.
	Timeout time.Duration
	// QueryRetry bounds retries of individual status queries.
	QueryRetry backoff.Config
}

// slowFactor scales the fast interval once the switch threshold passes.
const slowFactor = 6

// defaultSwitchAfter is when a scan stops being "probably quick".
const defaultSwitchAfter = 10 * time.Minute

// NewMonitor builds a monitor over the client with the harness retry
// policy.
func NewMonitor(client *nexpose.Client, interval, timeout time.Duration, maxRetries int) *Monitor {
	return &Monitor{
		scans:        client,
		reports:      client,
		FastInterval: interval,
		SlowInterval: interval * slowFactor,
		SwitchAfter:  defaultSwitchAfter,
		Timeout:      timeout,
		QueryRetry: backoff.Config{
			MinBackoff: interval,
			MaxBackoff: interval,
			MaxRetries: maxRetries,
		},
	}
}

// terminal classification of console scan statuses. "stopped" counts as a
// failure: a compliance run whose scan an operator stopped has no usable
// result.
func scanFailed(status string) bool {
	switch status {
	case nexpose.ScanStatusError, nexpose.ScanStatusAborted,
		nexpose.ScanStatusFailed, nexpose.ScanStatusStopped:
		return true
	}
	return false
}

// WaitForScan blocks until the scan finishes, fails, or the budget runs
// out. On success the JSON scan detail is fetched and a zero live-host
// count is surfaced as ErrNoLiveHosts.
func (m *Monitor) WaitForScan(ctx context.Context, scanID int) (nexpose.ScanDetail, error) {
	start := time.Now()
	deadline := start.Add(m.Timeout)
	// Retry sleeps inside the status queries honor the same budget as
	// the poll loop.
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	lastStatus := "unknown"

	for {
		status, err := m.queryStatus(ctx, scanID)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nexpose.ScanDetail{}, &TimeoutError{ScanID: scanID, Elapsed: time.Since(start), LastStatus: lastStatus}
			}
			return nexpose.ScanDetail{}, err
		}
		lastStatus = status

		switch {
		case status == nexpose.ScanStatusFinished:
			return m.finished(ctx, scanID)
		case scanFailed(status):
			return nexpose.ScanDetail{}, &ScanFailedError{ScanID: scanID, Status: status}
		}

		interval := m.FastInterval
		if time.Since(start) > m.SwitchAfter {
			interval = m.SlowInterval
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nexpose.ScanDetail{}, &TimeoutError{ScanID: scanID, Elapsed: time.Since(start), LastStatus: lastStatus}
		}
		if interval > remaining {
			interval = remaining
		}

		log.Printf("scan %d: %s (elapsed %s, next check in %s)",
			scanID, status, time.Since(start).Round(time.Second), interval)

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nexpose.ScanDetail{}, &TimeoutError{ScanID: scanID, Elapsed: time.Since(start), LastStatus: lastStatus}
			}
			return nexpose.ScanDetail{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (m *Monitor) finished(ctx context.Context, scanID int) (nexpose.ScanDetail, error) {
	detail, err := m.scanDetail(ctx, scanID)
	if err != nil {
		return nexpose.ScanDetail{}, err
	}
	if detail.LiveAssets == 0 {
		return detail, fmt.Errorf("scan %d: %w", scanID, ErrNoLiveHosts)
	}
	return detail, nil
}

// queryStatus retries transient status-query errors with the linear
// policy; an exhausted budget returns the last error. Console refusals
// don't heal with retries and surface immediately.
func (m *Monitor) queryStatus(ctx context.Context, scanID int) (string, error) {
	var lastErr error
	boff := backoff.New(ctx, m.QueryRetry)
	for boff.Ongoing() {
		status, err := m.scans.ScanStatus(ctx, scanID)
		if err == nil {
			return status, nil
		}
		var apiErr *nexpose.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("scan %d: status query: %w", scanID, err)
		}
		lastErr = err
		log.Printf("scan %d: status query failed (attempt %d): %v", scanID, boff.NumRetries()+1, err)
		boff.Wait()
	}
	if lastErr == nil {
		lastErr = boff.Err()
	}
	return "", fmt.Errorf("scan %d: status query: %w", scanID, lastErr)
}

func (m *Monitor) scanDetail(ctx context.Context, scanID int) (nexpose.ScanDetail, error) {
	var lastErr error
	boff := backoff.New(ctx, m.QueryRetry)
	for boff.Ongoing() {
		detail, err := m.scans.ScanDetailJSON(ctx, scanID)
		if err == nil {
			return detail, nil
		}
		var apiErr *nexpose.APIError
		if errors.As(err, &apiErr) {
			return nexpose.ScanDetail{}, fmt.Errorf("scan %d: detail query: %w", scanID, err)
		}
		lastErr = err
		boff.Wait()
	}
	if lastErr == nil {
		lastErr = boff.Err()
	}
	return nexpose.ScanDetail{}, fmt.Errorf("scan %d: detail query: %w", scanID, lastErr)
}

// WaitForReport polls the report listing until the config reports
// Generated. Report generation is quick next to a scan, so this reuses the
// fast cadence without the adaptive switch.
func (m *Monitor) WaitForReport(ctx context.Context, cfgID int) (nexpose.ReportConfigSummary, error) {
	start := time.Now()
	deadline := start.Add(m.Timeout)

	for {
		summary, err := m.reports.ReportSummary(ctx, cfgID)
		if err != nil {
			return nexpose.ReportConfigSummary{}, err
		}
		switch summary.Status {
		case nexpose.ReportStatusGenerated:
			return summary, nil
		case nexpose.ReportStatusFailed, nexpose.ReportStatusAborted:
			return summary, fmt.Errorf("report config %d generation %s", cfgID, summary.Status)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return summary, fmt.Errorf("report config %d not generated after %s (last status %q)",
				cfgID, time.Since(start).Round(time.Second), summary.Status)
		}
		interval := m.FastInterval
		if interval > remaining {
			interval = remaining
		}
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		case <-time.After(interval):
		}
	}
}
