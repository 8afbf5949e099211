// -----------------------------------------------------------------------
// Engine client - bulk submission to the downstream automation engine
// -----------------------------------------------------------------------

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/models"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Client submits extraction batches to the automation engine. A token is
// exchanged per call (client credentials grant, no caching) - retry frequency
// is low, so simplicity wins over latency here.
type Client struct {
	config     *common.EngineConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewClient creates an engine client from configuration
func NewClient(config *common.EngineConfig, logger arbor.ILogger) *Client {
	timeout := config.SubmitTimeout()
	interval := config.SubmitInterval()

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// authenticate performs the client-credentials token exchange
func (c *Client) authenticate(ctx context.Context) (string, error) {
	cc := clientcredentials.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		TokenURL:     c.config.TokenURL,
	}
	if c.config.Scope != "" {
		cc.Scopes = strings.Fields(c.config.Scope)
	}

	ctx, cancel := context.WithTimeout(ctx, c.httpClient.Timeout)
	defer cancel()

	token, err := cc.Token(ctx)
	if err != nil {
		return "", models.NewSubmissionError("engine authentication failed", err)
	}
	return token.AccessToken, nil
}

// bulkRequest is the engine's bulk queue-item payload
type bulkRequest struct {
	QueueName string                 `json:"queue_name"`
	FolderID  string                 `json:"folder_id,omitempty"`
	Items     []interfaces.QueueItem `json:"items"`
}

// bulkResponse is the engine's acceptance payload
type bulkResponse struct {
	Reference    string `json:"reference"`
	SubmissionID string `json:"submission_id"`
}

// SubmitBatch hands all queue items of one batch to the engine in a single
// all-or-nothing call: if any item is rejected the engine accepts nothing and
// the whole call fails. Authentication, validation and transport failures are
// all returned as *models.SubmissionError.
func (c *Client) SubmitBatch(ctx context.Context, items []interfaces.QueueItem) (*interfaces.SubmitResult, error) {
	if len(items) == 0 {
		return nil, models.NewSubmissionError("no queue items to submit", nil)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, models.NewSubmissionError("rate limiter wait cancelled", err)
	}

	token, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	payload := bulkRequest{
		QueueName: c.config.QueueName,
		FolderID:  c.config.FolderID,
		Items:     items,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, models.NewSubmissionError("failed to encode queue items", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/queues/items/bulk"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, models.NewSubmissionError("failed to build submit request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.logger.Debug().
		Str("url", url).
		Int("items", len(items)).
		Msg("Submitting batch to engine")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewSubmissionError("engine submit request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, models.NewSubmissionError("failed to read engine response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, models.NewSubmissionError(
			fmt.Sprintf("engine rejected submission (status %d): %s", resp.StatusCode, truncate(string(respBody), 500)), nil)
	}

	var result bulkResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, models.NewSubmissionError("failed to decode engine response", err)
	}

	c.logger.Info().
		Str("submission_id", result.SubmissionID).
		Int("items", len(items)).
		Msg("Engine accepted batch submission")

	return &interfaces.SubmitResult{
		Reference:    result.Reference,
		SubmissionID: result.SubmissionID,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
