package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"submission-observer/src/helpers"
	"submission-observer/src/interfaces"
	"submission-observer/src/logger"
	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------

// AsyncRestClient talks to the learning-management server's REST API. It is
// used to backfill state the realtime channel missed (cold start, reconnect).
type AsyncRestClient struct {
	Config      *models.MConfig
	Credentials interfaces.ICredentialSource
	Client      *http.Client
	Logger      *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncRestClient(cfg *models.MConfig, creds interfaces.ICredentialSource, log *logger.Logger) *AsyncRestClient {
	c := &AsyncRestClient{
		Config:      cfg,
		Credentials: creds,
		Logger:      log,
	}
	c.Client = &http.Client{
		Timeout: time.Duration(cfg.Rest.RequestTimeout) * time.Second,
	}
	return c
}

// -----------------------------------------------------------------------------

// get performs a GET request with retries and exponential backoff. The session
// credential travels as a Cookie header, never as a query parameter, so it
// cannot leak into logs or proxies.
func (c *AsyncRestClient) get(ctx context.Context, path string) ([]byte, error) {
	urlStr := c.Config.Server.BaseURL + path

	maxRetries := c.Config.Rest.MaxRetries
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			// Exponential backoff between attempts
			select {
			case <-time.After(time.Duration(1<<(i-1)) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Accept", "application/json")
		if token, err := c.Credentials.Get(); err == nil && token != "" {
			req.Header.Set("Cookie", "jwt="+token)
		}

		resp, err := c.Client.Do(req)
		if err != nil {
			lastErr = err
			c.Logger.Info("Request failed (attempt %d/%d): %v", i+1, maxRetries, err)
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			resp.Body.Close()
			// No point retrying with the same credential
			return nil, helpers.NewAuthenticationMissing(fmt.Sprintf("server rejected credential (status %d)", resp.StatusCode))
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("bad status: %d", resp.StatusCode)
			c.Logger.Info("Bad status %d for %s", resp.StatusCode, path)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		return body, nil
	}

	return nil, helpers.NewRestError(fmt.Sprintf("max retries exceeded for %s", path), lastErr)
}

// -----------------------------------------------------------------------------

// GetParticipations fetches the user's participations with their submissions
// and results (course dashboard pull).
func (c *AsyncRestClient) GetParticipations(ctx context.Context) ([]models.MParticipation, error) {
	body, err := c.get(ctx, "/api/participations")
	if err != nil {
		return nil, err
	}

	var participations []models.MParticipation
	if err := json.Unmarshal(body, &participations); err != nil {
		return nil, helpers.NewRestError("failed to decode participations response", err)
	}

	c.Logger.Debug("Fetched %d participations", len(participations))
	return participations, nil
}

// -----------------------------------------------------------------------------

// GetResultDetails fetches one result including test-case counts.
func (c *AsyncRestClient) GetResultDetails(ctx context.Context, participationID, resultID int64) (*models.MResult, error) {
	path := fmt.Sprintf("/api/participations/%d/results/%d/details", participationID, resultID)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var result models.MResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, helpers.NewRestError("failed to decode result details", err)
	}

	return &result, nil
}

// -----------------------------------------------------------------------------

// Health probes the server. The fixed short timeout is honored regardless of
// the general request timeout.
func (c *AsyncRestClient) Health(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, time.Duration(c.Config.Rest.HealthTimeoutSeconds)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, c.Config.Server.BaseURL+"/api/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return helpers.NewRestError("health check failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return helpers.NewRestError(fmt.Sprintf("health check returned status %d", resp.StatusCode), nil)
	}
	return nil
}
