package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRESTBaseURL = "https://api.twilio.com"

// RestClient places outbound calls through the provider REST API.
type RestClient struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	HTTPClient *http.Client
}

// Call is the subset of the provider's call resource the dialer needs.
type Call struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
	To     string `json:"to"`
	From   string `json:"from"`
}

// CreateCall dials to from the given caller id and points the call at
// handlerURL, which must return a call-control document.
func (c *RestClient) CreateCall(ctx context.Context, to, from, handlerURL string) (*Call, error) {
	if c.AccountSID == "" || c.AuthToken == "" {
		return nil, fmt.Errorf("account credentials are required")
	}
	base := c.BaseURL
	if base == "" {
		base = defaultRESTBaseURL
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", strings.TrimRight(base, "/"), c.AccountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Url", handlerURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.AccountSID, c.AuthToken)

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read call response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create call: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var call Call
	if err := json.Unmarshal(body, &call); err != nil {
		return nil, fmt.Errorf("decode call response: %w", err)
	}
	return &call, nil
}
