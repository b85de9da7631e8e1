// Package wompi talks to the Wompi payments API.
package wompi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrNotFound = errors.New("wompi: not found")

const checkoutBaseURL = "https://checkout.wompi.co/l/"

// Client is a small Wompi REST client authenticated with the private key.
type Client struct {
	client *resty.Client
}

// PaymentLinkRequest describes a single use checkout for one plan period.
type PaymentLinkRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	SingleUse       bool   `json:"single_use"`
	CollectShipping bool   `json:"collect_shipping"`
	Currency        string `json:"currency"`
	AmountInCents   int64  `json:"amount_in_cents"`
	Reference       string `json:"reference"`
	RedirectURL     string `json:"redirect_url,omitempty"`
}

// PaymentLink is the created link.
type PaymentLink struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkoutUrl"`
}

type errorBody struct {
	Error struct {
		Type     string      `json:"type"`
		Reason   string      `json:"reason"`
		Messages interface{} `json:"messages"`
	} `json:"error"`
}

func NewClient(baseURL, privateKey string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetAuthToken(privateKey).
			SetTimeout(15 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= http.StatusInternalServerError
			}),
	}
}

// CreatePaymentLink creates a single use payment link.
func (c *Client) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error) {
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	var apiErr errorBody
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/payment_links")
	if err != nil {
		return nil, fmt.Errorf("wompi create payment link: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("wompi create payment link: status %d: %s", resp.StatusCode(), apiErr.Error.Type)
	}
	return &PaymentLink{ID: out.Data.ID, CheckoutURL: checkoutBaseURL + out.Data.ID}, nil
}

// GetTransaction fetches the current state of a transaction.
func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	var out struct {
		Data Transaction `json:"data"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		Get("/transactions/{id}")
	if err != nil {
		return nil, fmt.Errorf("wompi get transaction: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("wompi get transaction: status %d", resp.StatusCode())
	}
	return &out.Data, nil
}
