package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Media is a file chosen by a guest.
type Media struct {
	FileName    string
	ContentType string
	Data        []byte
}

// TokenSource returns the caller's current access token.
type TokenSource func() string

// Client requests targets from the broker and uploads to them.
type Client struct {
	brokerURL string
	publicURL string
	token     TokenSource
	http      *http.Client
}

// NewClient creates a client for the broker at brokerURL. Uploaded
// objects resolve under publicURL.
func NewClient(brokerURL, publicURL string, token TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{brokerURL: brokerURL, publicURL: publicURL, token: token, http: httpClient}
}

// RequestTarget asks the broker for a signed upload location.
func (c *Client) RequestTarget(ctx context.Context, req TargetRequest) (*Target, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.brokerURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		if tok := c.token(); tok != "" {
			httpReq.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to request upload target: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("upload target rejected (%d): %s", resp.StatusCode, payload.Error)
	}

	var target Target
	if err := json.NewDecoder(resp.Body).Decode(&target); err != nil {
		return nil, fmt.Errorf("failed to decode upload target: %w", err)
	}
	return &target, nil
}

// Put uploads m to a signed URL.
func (c *Client) Put(ctx context.Context, target *Target, m Media) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.SignedURL, bytes.NewReader(m.Data))
	if err != nil {
		return err
	}
	if m.ContentType != "" {
		req.Header.Set("Content-Type", m.ContentType)
	}
	req.ContentLength = int64(len(m.Data))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to upload media: status %d", resp.StatusCode)
	}
	return nil
}

// Upload stores m under folder and returns its public URL.
func (c *Client) Upload(ctx context.Context, folder, guestID string, m Media) (string, error) {
	target, err := c.RequestTarget(ctx, TargetRequest{
		Folder:      folder,
		GuestID:     guestID,
		FileName:    m.FileName,
		ContentType: m.ContentType,
	})
	if err != nil {
		return "", err
	}
	if err := c.Put(ctx, target, m); err != nil {
		return "", err
	}
	return PublicURL(c.publicURL, target.Path), nil
}
