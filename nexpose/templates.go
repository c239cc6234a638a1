package nexpose

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const templatesPath = "/api/3/scan_templates"

// CreateScanTemplate posts a scan-template definition and returns the
// template id. The payload comes from the payloads/ directory; name and
// the enabled policy are patched in per suite, the rest of the template is
// taken as-is.
func (c *Client) CreateScanTemplate(ctx context.Context, payload []byte, name, policyID string) (string, error) {
	var err error
	if name != "" {
		payload, err = sjson.SetBytes(payload, "name", name)
		if err != nil {
			return "", fmt.Errorf("scan template: patching name: %w", err)
		}
	}
	if policyID != "" {
		payload, err = sjson.SetBytes(payload, "policy.enabled.0", policyID)
		if err != nil {
			return "", fmt.Errorf("scan template: patching policy: %w", err)
		}
	}

	body, err := c.callJSON(ctx, "scan template create", "POST", templatesPath, payload)
	if err != nil {
		return "", err
	}

	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		// Some console versions only return a resource link.
		id = gjson.GetBytes(body, `links.#(rel=="self").href`).String()
	}
	if id == "" {
		return "", &APIError{Op: "scan template create", Message: "no template id in response"}
	}
	return id, nil
}

// ScanTemplateExists reports whether a template id is known to the console.
func (c *Client) ScanTemplateExists(ctx context.Context, id string) (bool, error) {
	body, err := c.callJSON(ctx, "scan template get", "GET", templatesPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return false, nil
		}
		return false, err
	}
	return gjson.GetBytes(body, "id").Exists(), nil
}

// DeleteScanTemplate removes a template created for a run.
func (c *Client) DeleteScanTemplate(ctx context.Context, id string) error {
	_, err := c.callJSON(ctx, "scan template delete", "DELETE", templatesPath+"/"+url.PathEscape(id), nil)
	return err
}
