// Package youtube finds a companion video for a generated module.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

var ErrNoResults = errors.New("no video found")

// Client searches the YouTube Data API.
type Client struct {
	client *resty.Client
	apiKey string
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second),
		apiKey: apiKey,
	}
}

// FindVideo returns the id of the most relevant embeddable video for query.
func (c *Client) FindVideo(ctx context.Context, query string) (string, error) {
	var out searchResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part":              "snippet",
			"type":              "video",
			"videoEmbeddable":   "true",
			"maxResults":        "1",
			"relevanceLanguage": "es",
			"q":                 query,
			"key":               c.apiKey,
		}).
		SetResult(&out).
		Get("/search")
	if err != nil {
		return "", fmt.Errorf("youtube search: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("youtube search: status %d", resp.StatusCode())
	}
	if len(out.Items) == 0 || out.Items[0].ID.VideoID == "" {
		return "", ErrNoResults
	}
	return out.Items[0].ID.VideoID, nil
}
