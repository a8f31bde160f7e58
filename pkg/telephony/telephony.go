package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Config struct {
	BaseURL     string        `split_words:"true" default:"https://api.twilio.com/2010-04-01"`
	AccountSID  string        `envconfig:"ACCOUNT_SID" split_words:"true" required:"true"`
	AuthToken   string        `split_words:"true" required:"true"`
	FromNumber  string        `split_words:"true" required:"true"`
	CallbackURL string        `split_words:"true"`
	Timeout     time.Duration `split_words:"true" default:"15s"`
	MaxRetries  uint64        `split_words:"true" default:"3"`
}

// CallRequest describes one outbound reservation call.
type CallRequest struct {
	ToNumber string
	// Script is the instruction payload handed to the voice agent driving
	// the call.
	Script string
}

// Client places outbound calls through a Twilio-style REST API. Transient
// failures are retried with exponential backoff; 4xx responses are not.
type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	fromNumber string
	callback   string
	maxRetries uint64
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("telephony base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, errors.New("telephony account sid is required")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, errors.New("telephony from number is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		fromNumber: strings.TrimSpace(cfg.FromNumber),
		callback:   strings.TrimSpace(cfg.CallbackURL),
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type callResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

var errPermanent = errors.New("telephony request rejected")

// PlaceCall starts an outbound call and returns the provider call SID.
func (c *Client) PlaceCall(ctx context.Context, req CallRequest) (string, error) {
	to := strings.TrimSpace(req.ToNumber)
	if to == "" {
		return "", errors.New("call destination number is required")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.fromNumber)
	form.Set("Script", req.Script)
	if c.callback != "" {
		form.Set("StatusCallback", c.callback)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.accountSID)

	operation := func() (string, error) {
		sid, err := c.postCall(ctx, endpoint, form)
		if err != nil {
			if errors.Is(err, errPermanent) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return sid, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries),
		ctx,
	)
	return backoff.RetryWithData(operation, policy)
}

func (c *Client) postCall(ctx context.Context, endpoint string, form url.Values) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("place call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read call response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("place call: status %d", resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: status %d: %s", errPermanent, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out callResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: decode call response: %v", errPermanent, err)
	}
	if strings.TrimSpace(out.SID) == "" {
		return "", fmt.Errorf("%w: call response has no sid", errPermanent)
	}
	return out.SID, nil
}
