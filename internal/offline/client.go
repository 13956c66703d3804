package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
)

const idempotencyHeader = "Idempotency-Key"

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *appErrors.Error `json:"error"`
}

// APIClient submits issues to the server create endpoint.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAPIClient constructs a client. token may be empty for anonymous submissions.
func NewAPIClient(baseURL, token string, client *http.Client) *APIClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &APIClient{baseURL: baseURL, token: token, client: client}
}

// CreateIssue posts req. Network failures, 5xx, 408 and 429 come back as
// TRANSIENT_IO; other server errors keep their code and status.
func (c *APIClient) CreateIssue(ctx context.Context, req dto.CreateIssueRequest, idempotencyKey string) (*models.Issue, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/issues", bytes.NewReader(body))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		httpReq.Header.Set(idempotencyHeader, idempotencyKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "server unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "read response")
	}

	if transientStatus(resp.StatusCode) {
		return nil, appErrors.Wrap(fmt.Errorf("status %d", resp.StatusCode), appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "server temporarily unavailable")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, resp.StatusCode, "unexpected response body")
	}
	if resp.StatusCode >= 400 {
		if env.Error != nil && env.Error.Code != "" {
			return nil, env.Error
		}
		return nil, appErrors.New(appErrors.ErrInternal.Code, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var issue models.Issue
	if err := json.Unmarshal(env.Data, &issue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decode issue")
	}
	return &issue, nil
}

func transientStatus(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}
