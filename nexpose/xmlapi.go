package nexpose

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Request and response shapes for the console XML API v1.1. Attribute
// naming follows the vendor's wire format, which is why the tags look
// nothing like Go.

type loginRequest struct {
	XMLName  xml.Name `xml:"LoginRequest"`
	UserID   string   `xml:"user-id,attr"`
	Password string   `xml:"password,attr"`
}

type loginResponse struct {
	XMLName   xml.Name `xml:"LoginResponse"`
	Success   string   `xml:"success,attr"`
	SessionID string   `xml:"session-id,attr"`
}

type logoutRequest struct {
	XMLName   xml.Name `xml:"LogoutRequest"`
	SessionID string   `xml:"session-id,attr"`
}

// Site is the console-side definition saved by SiteSaveRequest. A zero ID
// is rewritten to -1, which the console reads as "create".
type Site struct {
	ID          int              `xml:"id,attr"`
	Name        string           `xml:"name,attr"`
	Description string           `xml:"Description,omitempty"`
	Hosts       []string         `xml:"Hosts>host"`
	Credentials *SiteCredentials `xml:"Credentials,omitempty"`
	ScanConfig  ScanConfig       `xml:"ScanConfig"`
}

// SiteCredentials carries the admin credentials the scan engine uses to
// authenticate against the targets.
type SiteCredentials struct {
	Admin []AdminCredential `xml:"adminCredentials"`
}

// AdminCredential is one service credential (ssh for servers, a database
// protocol for database checks).
type AdminCredential struct {
	Service  string `xml:"service,attr"`
	Host     string `xml:"host,attr,omitempty"`
	Port     int    `xml:"port,attr,omitempty"`
	UserID   string `xml:"userid,attr"`
	Password string `xml:"password,attr"`
}

// ScanConfig binds a site to a scan template.
type ScanConfig struct {
	ConfigID   int    `xml:"configID,attr"`
	Name       string `xml:"name,attr"`
	TemplateID string `xml:"templateID,attr"`
}

type siteSaveRequest struct {
	XMLName   xml.Name `xml:"SiteSaveRequest"`
	SessionID string   `xml:"session-id,attr"`
	Site      Site     `xml:"Site"`
}

type siteSaveResponse struct {
	XMLName xml.Name `xml:"SiteSaveResponse"`
	Success string   `xml:"success,attr"`
	SiteID  int      `xml:"site-id,attr"`
}

type siteDeleteRequest struct {
	XMLName   xml.Name `xml:"SiteDeleteRequest"`
	SessionID string   `xml:"session-id,attr"`
	SiteID    int      `xml:"site-id,attr"`
}

type siteDeleteResponse struct {
	XMLName xml.Name `xml:"SiteDeleteResponse"`
	Success string   `xml:"success,attr"`
}

type siteScanRequest struct {
	XMLName   xml.Name `xml:"SiteScanRequest"`
	SessionID string   `xml:"session-id,attr"`
	SiteID    int      `xml:"site-id,attr"`
}

type siteScanResponse struct {
	XMLName xml.Name `xml:"SiteScanResponse"`
	Success string   `xml:"success,attr"`
	Scan    struct {
		ScanID   int `xml:"scan-id,attr"`
		EngineID int `xml:"engine-id,attr"`
	} `xml:"Scan"`
}

type scanStatusRequest struct {
	XMLName   xml.Name `xml:"ScanStatusRequest"`
	SessionID string   `xml:"session-id,attr"`
	ScanID    int      `xml:"scan-id,attr"`
}

type scanStatusResponse struct {
	XMLName  xml.Name `xml:"ScanStatusResponse"`
	Success  string   `xml:"success,attr"`
	ScanID   int      `xml:"scan-id,attr"`
	EngineID int      `xml:"engine-id,attr"`
	Status   string   `xml:"status,attr"`
}

type scanStopRequest struct {
	XMLName   xml.Name `xml:"ScanStopRequest"`
	SessionID string   `xml:"session-id,attr"`
	ScanID    int      `xml:"scan-id,attr"`
}

type scanStopResponse struct {
	XMLName xml.Name `xml:"ScanStopResponse"`
	Success string   `xml:"success,attr"`
}

// reportSaveRequest mirrors the payload the original harness built from its
// JSON template: a site filter plus a policy-listing filter, generate-now,
// and server-side storage.
type reportSaveRequest struct {
	XMLName     xml.Name     `xml:"ReportSaveRequest"`
	SessionID   string       `xml:"session-id,attr"`
	GenerateNow string       `xml:"generate-now,attr"`
	Config      reportConfig `xml:"ReportConfig"`
}

type reportConfig struct {
	ID       string         `xml:"id,attr"`
	Format   string         `xml:"format,attr"`
	Name     string         `xml:"name,attr"`
	Filters  []reportFilter `xml:"Filters>filter"`
	Generate struct {
		AfterScan string `xml:"after-scan,attr"`
		Schedule  string `xml:"schedule,attr"`
	} `xml:"Generate"`
	Delivery struct {
		Storage struct {
			StoreOnServer string `xml:"storeOnServer,attr"`
		} `xml:"Storage"`
	} `xml:"Delivery"`
}

type reportFilter struct {
	Type  string `xml:"type,attr"`
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

type reportSaveResponse struct {
	XMLName     xml.Name `xml:"ReportSaveResponse"`
	Success     string   `xml:"success,attr"`
	ReportCfgID int      `xml:"reportcfg-id,attr"`
}

type reportListingRequest struct {
	XMLName   xml.Name `xml:"ReportListingRequest"`
	SessionID string   `xml:"session-id,attr"`
}

type reportListingResponse struct {
	XMLName xml.Name              `xml:"ReportListingResponse"`
	Success string                `xml:"success,attr"`
	Reports []ReportConfigSummary `xml:"ReportConfigSummary"`
}

// ReportConfigSummary is one report instance known to the console.
type ReportConfigSummary struct {
	CfgID       int    `xml:"cfg-id,attr"`
	TemplateID  string `xml:"template-id,attr"`
	Status      string `xml:"status,attr"`
	GeneratedOn string `xml:"generated-on,attr"`
	ReportURI   string `xml:"report-URI,attr"`
}

type reportDeleteRequest struct {
	XMLName     xml.Name `xml:"ReportDeleteRequest"`
	SessionID   string   `xml:"session-id,attr"`
	ReportCfgID int      `xml:"reportcfg-id,attr"`
}

type reportDeleteResponse struct {
	XMLName xml.Name `xml:"ReportDeleteResponse"`
	Success string   `xml:"success,attr"`
}

// failure is the generic error envelope the XML API wraps refusals in.
type failure struct {
	XMLName   xml.Name `xml:"Failure"`
	Exception struct {
		Message string `xml:"Message"`
	} `xml:"Exception"`
	Message string `xml:"Message"`
}

func (f failure) message() string {
	if f.Exception.Message != "" {
		return f.Exception.Message
	}
	return f.Message
}

// APIError is a refusal reported by the console itself, as opposed to a
// transport failure.
type APIError struct {
	Op      string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("console refused %s: %s", e.Op, e.Message)
}

// extractFailure pulls the Failure envelope out of a response body, if one
// is present anywhere in it.
func extractFailure(body []byte) (string, bool) {
	idx := strings.Index(string(body), "<Failure")
	if idx < 0 {
		return "", false
	}
	var f failure
	if err := xml.Unmarshal(body[idx:], &f); err != nil {
		return "unparseable failure envelope", true
	}
	return f.message(), true
}
