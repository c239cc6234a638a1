package nexpose

import (
	"context"
)

// SaveSite creates (or updates, when site.ID is set) a site and returns its
// console id.
func (c *Client) SaveSite(ctx context.Context, site Site) (int, error) {
	if site.ID == 0 {
		site.ID = -1 // console reads -1 as "create"
	}
	if site.ScanConfig.ConfigID == 0 {
		site.ScanConfig.ConfigID = -1
	}
	if site.ScanConfig.Name == "" {
		site.ScanConfig.Name = site.Name
	}

	var resp siteSaveResponse
	err := c.callXML(ctx, "site save", func(sess string) any {
		return siteSaveRequest{SessionID: sess, Site: site}
	}, &resp, &resp.Success)
	if err != nil {
		return 0, err
	}
	return resp.SiteID, nil
}

// DeleteSite removes a site from the console.
func (c *Client) DeleteSite(ctx context.Context, siteID int) error {
	var resp siteDeleteResponse
	return c.callXML(ctx, "site delete", func(sess string) any {
		return siteDeleteRequest{SessionID: sess, SiteID: siteID}
	}, &resp, &resp.Success)
}
