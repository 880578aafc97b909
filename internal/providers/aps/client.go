// Package aps submits AutoLISP scripts to the Autodesk Platform Services
// design-automation API: two-legged token, workitem submit, status polling,
// then artifact or report download. Execution outcomes follow the CAD
// contract in the generate package; only transport problems surface as
// errors.
package aps

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"fossapp/internal/generate"
)

const (
	defaultBaseURL  = "https://developer.api.autodesk.com"
	defaultTimeout  = 120 * time.Second
	defaultInterval = 2 * time.Second
	maxPolls        = 150

	tokenScope = "code:all data:read data:write"
)

// Options configures the client. Activity names the pre-registered
// design-automation activity that runs scripts against AutoCAD.
type Options struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Activity     string
	HTTPClient   *http.Client
	PollInterval time.Duration
}

type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	activity     string
	client       *http.Client
	pollInterval time.Duration

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.ClientID) == "" || strings.TrimSpace(opts.ClientSecret) == "" {
		return nil, errors.New("aps: client id and secret are required")
	}
	if strings.TrimSpace(opts.Activity) == "" {
		return nil, errors.New("aps: activity is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Client{
		clientID:     strings.TrimSpace(opts.ClientID),
		clientSecret: strings.TrimSpace(opts.ClientSecret),
		baseURL:      baseURL,
		activity:     opts.Activity,
		client:       client,
		pollInterval: interval,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached two-legged token, refreshing it shortly
// before expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", tokenScope)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/authentication/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("aps: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("aps: token request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("aps: token status %d", resp.StatusCode)
	}
	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("aps: decode token: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("aps: empty access token")
	}
	c.token = out.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return c.token, nil
}

type workItemRequest struct {
	ActivityID string                 `json:"activityId"`
	Arguments  map[string]workItemArg `json:"arguments"`
}

type workItemArg struct {
	URL     string            `json:"url,omitempty"`
	Verb    string            `json:"verb,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type workItemStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ReportURL string `json:"reportUrl"`
	Outputs   []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"outputs"`
}

// Execute implements generate.CADRunner. The script and raster assets are
// embedded as data URLs; the workitem is polled until it leaves the pending
// states. Progress is relayed at every observable step.
func (c *Client) Execute(ctx context.Context, script string, assets []generate.Asset, progress generate.Progress) (*generate.CADResult, error) {
	if progress == nil {
		progress = func(string, string, string) {}
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	args := map[string]workItemArg{
		"script": {URL: "data:application/x-lisp," + url.PathEscape(script)},
	}
	for _, asset := range assets {
		args[asset.Name] = workItemArg{
			URL: "data:" + asset.MIME + ";base64," + base64.StdEncoding.EncodeToString(asset.Data),
		}
	}

	body, err := json.Marshal(workItemRequest{ActivityID: c.activity, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("aps: encode workitem: %w", err)
	}

	progress("aps", "Submitting work item", c.activity)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/da/us-east/v3/workitems", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("aps: build workitem request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aps: submit workitem: %w", err)
	}
	var submitted workItemStatus
	decodeErr := json.NewDecoder(resp.Body).Decode(&submitted)
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("aps: workitem status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("aps: decode workitem: %w", decodeErr)
	}
	if submitted.ID == "" {
		return nil, errors.New("aps: workitem id missing")
	}

	status, err := c.poll(ctx, token, submitted.ID, progress)
	if err != nil {
		return nil, err
	}

	if status.Status != "success" {
		report := c.fetchText(ctx, status.ReportURL)
		return &generate.CADResult{
			Success: false,
			Errors:  extractReportErrors(report, status.Status),
			Report:  report,
		}, nil
	}

	result := &generate.CADResult{Success: true, Report: c.fetchText(ctx, status.ReportURL)}
	for _, out := range status.Outputs {
		switch {
		case strings.HasSuffix(out.Name, ".dwg"):
			progress("aps", "Downloading drawing", out.Name)
			data, err := c.fetchBinary(ctx, out.URL)
			if err != nil {
				return nil, fmt.Errorf("aps: download %s: %w", out.Name, err)
			}
			result.DWG = data
			result.OutputURL = out.URL
		case strings.HasSuffix(out.Name, ".png"):
			progress("aps", "Downloading preview", out.Name)
			data, err := c.fetchBinary(ctx, out.URL)
			if err != nil {
				return nil, fmt.Errorf("aps: download %s: %w", out.Name, err)
			}
			result.PNG = data
		}
	}
	if result.DWG == nil {
		return nil, errors.New("aps: workitem succeeded but produced no drawing")
	}
	return result, nil
}

func (c *Client) poll(ctx context.Context, token, id string, progress generate.Progress) (*workItemStatus, error) {
	lastStatus := ""
	for i := 0; i < maxPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/da/us-east/v3/workitems/"+id, nil)
		if err != nil {
			return nil, fmt.Errorf("aps: build poll request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("aps: poll workitem: %w", err)
		}
		var status workItemStatus
		decodeErr := json.NewDecoder(resp.Body).Decode(&status)
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("aps: poll status %d", resp.StatusCode)
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("aps: decode poll: %w", decodeErr)
		}

		switch status.Status {
		case "pending", "inprogress":
			if status.Status != lastStatus {
				progress("aps", "Work item "+status.Status, "")
				lastStatus = status.Status
			}
		default:
			return &status, nil
		}
	}
	return nil, errors.New("aps: workitem polling timed out")
}

func (c *Client) fetchText(ctx context.Context, rawURL string) string {
	data, err := c.fetchBinary(ctx, rawURL)
	if err != nil {
		return ""
	}
	return string(data)
}

func (c *Client) fetchBinary(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, errors.New("aps: empty url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// extractReportErrors pulls the error lines out of an execution report so
// the retry loop has concrete context to feed back. When the report is
// empty the raw workitem status is all there is.
func extractReportErrors(report, status string) []string {
	var errs []string
	for _, line := range strings.Split(report, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
			errs = append(errs, trimmed)
		}
	}
	if len(errs) == 0 {
		errs = []string{"workitem finished with status " + status}
	}
	return errs
}
