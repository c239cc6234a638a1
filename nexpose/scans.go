package nexpose

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ScanStatus values reported by the console. The status attribute is free
// text on the wire; these are the ones the product actually emits.
const (
	ScanStatusRunning     = "running"
	ScanStatusFinished    = "finished"
	ScanStatusStopped     = "stopped"
	ScanStatusError       = "error"
	ScanStatusAborted     = "aborted"
	ScanStatusFailed      = "failed"
	ScanStatusDispatched  = "dispatched"
	ScanStatusIntegrating = "integrating"
	ScanStatusPaused      = "paused"
)

// StartScan launches a scan of the given site and returns the scan id.
func (c *Client) StartScan(ctx context.Context, siteID int) (int, error) {
	var resp siteScanResponse
	err := c.callXML(ctx, "site scan", func(sess string) any {
		return siteScanRequest{SessionID: sess, SiteID: siteID}
	}, &resp, &resp.Success)
	if err != nil {
		return 0, err
	}
	if resp.Scan.ScanID == 0 {
		return 0, &APIError{Op: "site scan", Message: "no scan id in response"}
	}
	return resp.Scan.ScanID, nil
}

// ScanStatus reports the scan's current status string, normalized to lower
// case.
func (c *Client) ScanStatus(ctx context.Context, scanID int) (string, error) {
	var resp scanStatusResponse
	err := c.callXML(ctx, "scan status", func(sess string) any {
		return scanStatusRequest{SessionID: sess, ScanID: scanID}
	}, &resp, &resp.Success)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(resp.Status)), nil
}

// StopScan asks the console to stop a running scan. Used on timeout so an
// abandoned scan doesn't hold the engine.
func (c *Client) StopScan(ctx context.Context, scanID int) error {
	var resp scanStopResponse
	return c.callXML(ctx, "scan stop", func(sess string) any {
		return scanStopRequest{SessionID: sess, ScanID: scanID}
	}, &resp, &resp.Success)
}

// ScanDetail is the slice of the JSON scan resource the harness cares
// about.
type ScanDetail struct {
	ID         int
	Status     string
	LiveAssets int64
}

// ScanDetailJSON fetches the scan resource from the JSON API. The live
// asset count is what distinguishes "target never answered" from a real
// result after a scan finishes.
func (c *Client) ScanDetailJSON(ctx context.Context, scanID int) (ScanDetail, error) {
	body, err := c.callJSON(ctx, "scan detail", "GET", fmt.Sprintf("/api/3/scans/%d", scanID), nil)
	if err != nil {
		return ScanDetail{}, err
	}
	detail := ScanDetail{
		ID:         scanID,
		Status:     strings.ToLower(gjson.GetBytes(body, "status").String()),
		LiveAssets: gjson.GetBytes(body, "assets").Int(),
	}
	return detail, nil
}
