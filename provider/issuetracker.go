package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quillworks/relay"
)

// issuePayload is the provider-specific input an issue-tracker request
// carries. Fields the tracker rejects come back in its error body; the
// adapter does not pre-validate beyond requiring a decodable payload.
type issuePayload struct {
	Project     string `json:"project"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	IssueType   string `json:"issueType,omitempty"`
}

// issueCreated is the success body of an issue creation call.
type issueCreated struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// IssueTrackerAdapter invokes an issue-tracker HTTP API and maps its
// response shapes into ExecutionResults. The tracker's error body is
// `{"errors": {<field>: <message>}, "errorMessages": [<string>]}`, both
// keys optional.
type IssueTrackerAdapter struct {
	tag      relay.Provider
	endpoint string
	token    string
	client   *http.Client
}

// NewIssueTrackerAdapter creates an issue-tracker adapter from settings.
func NewIssueTrackerAdapter(s Settings) (*IssueTrackerAdapter, error) {
	endpoint := strings.TrimSpace(s.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("provider: issue tracker endpoint is empty")
	}
	return &IssueTrackerAdapter{
		tag:      s.Tag,
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    s.Token,
		client:   &http.Client{Timeout: s.timeout()},
	}, nil
}

// Name returns the provider tag this adapter serves.
func (a *IssueTrackerAdapter) Name() relay.Provider {
	return a.tag
}

// Invoke performs one issue creation call.
func (a *IssueTrackerAdapter) Invoke(ctx context.Context, req relay.ExecutionRequest) relay.ExecutionResult {
	var payload issuePayload
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			return relay.Failure(
				fmt.Sprintf("issue payload is not valid JSON: %v", err),
				relay.ErrorKindValidation,
			)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return relay.Failure(
			fmt.Sprintf("encode issue payload: %v", err),
			relay.ErrorKindUnknown,
		)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/issue", bytes.NewReader(body))
	if err != nil {
		return relay.Failure(
			fmt.Sprintf("build issue tracker request: %v", err),
			relay.ErrorKindUnknown,
		)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if a.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		// Transport-level failure: no body to parse.
		return relay.Failure(
			fmt.Sprintf("issue tracker unreachable: %v", err),
			relay.ErrorKindTransient,
		)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return relay.Failure(
			fmt.Sprintf("read issue tracker response: %v", err),
			relay.ErrorKindTransient,
		)
	}

	return a.mapResponse(resp.StatusCode, respBody)
}

// mapResponse turns a status code and body into the uniform result.
func (a *IssueTrackerAdapter) mapResponse(status int, body []byte) relay.ExecutionResult {
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return successFromIssueBody(body)

	case status == http.StatusBadRequest || status == http.StatusConflict ||
		status == http.StatusUnprocessableEntity:
		return relay.Failure(decodeErrorPayload(body).Normalize(), relay.ErrorKindValidation)

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return relay.Failure(
			bodyOrStatusMessage(body, status, "issue tracker rejected credentials"),
			relay.ErrorKindAuth,
		)

	case status == http.StatusNotFound:
		return relay.Failure(
			bodyOrStatusMessage(body, status, "issue tracker resource not found"),
			relay.ErrorKindNotFound,
		)

	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError:
		return relay.Failure(
			fmt.Sprintf("issue tracker unavailable (status %d)", status),
			relay.ErrorKindTransient,
		)

	default:
		return relay.Failure(
			bodyOrStatusMessage(body, status, "issue tracker returned unexpected response"),
			relay.ErrorKindUnknown,
		)
	}
}

// successFromIssueBody summarizes a successful creation. A success body the
// adapter cannot decode still succeeds; the summary just loses the key.
func successFromIssueBody(body []byte) relay.ExecutionResult {
	var created issueCreated
	if err := json.Unmarshal(body, &created); err == nil && created.Key != "" {
		return relay.Success(fmt.Sprintf("created issue %s", created.Key))
	}
	return relay.Success("issue tracker call succeeded")
}

// bodyOrStatusMessage prefers the provider's own messages when the body
// parses to a non-empty payload, and falls back to a generic description.
func bodyOrStatusMessage(body []byte, status int, fallback string) string {
	if payload := decodeErrorPayload(body); !payload.Empty() {
		return payload.Normalize()
	}
	return fmt.Sprintf("%s (status %d)", fallback, status)
}

// CheckHealth probes the tracker's base endpoint. Any response below 500
// counts as alive; the probe is about reachability, not authorization.
func (a *IssueTrackerAdapter) CheckHealth(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint, nil)
	if err != nil {
		return fmt.Errorf("provider: build health request: %w", err)
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("provider: issue tracker unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("provider: issue tracker unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// Close releases any adapter resources.
func (a *IssueTrackerAdapter) Close(ctx context.Context) error {
	a.client.CloseIdleConnections()
	return nil
}

var (
	_ Adapter       = (*IssueTrackerAdapter)(nil)
	_ HealthChecker = (*IssueTrackerAdapter)(nil)
)
