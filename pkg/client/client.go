package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sbomtools/sbom-collector/internal/domain"
)

// Client is the API client for the sbom-collector run-history server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetRuns retrieves the most recent runs for an owner
func (c *Client) GetRuns(owner string, limit int) ([]*domain.RunRecord, error) {
	path := fmt.Sprintf("/api/v1/owners/%s/runs", owner)
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []*domain.RunRecord `json:"data"`
	}
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetLatestRun retrieves the newest run for an owner
func (c *Client) GetLatestRun(owner string) (*domain.RunRecord, error) {
	path := fmt.Sprintf("/api/v1/owners/%s/runs/latest", owner)

	var response struct {
		Data *domain.RunRecord `json:"data"`
	}
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetOwnerStats retrieves aggregate stats across stored runs for an owner
func (c *Client) GetOwnerStats(owner string) (*domain.OwnerStats, error) {
	path := fmt.Sprintf("/api/v1/owners/%s/stats", owner)

	var response struct {
		Data *domain.OwnerStats `json:"data"`
	}
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// get performs a GET request and decodes the JSON response
func (c *Client) get(path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	resp, err := c.httpClient.Get(u)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return fmt.Errorf("API error %s: %s", errResp.Error.Code, errResp.Error.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
