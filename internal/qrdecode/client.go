package qrdecode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrNoCode means the service found no readable QR symbol in the image.
var ErrNoCode = fmt.Errorf("no QR code found in image")

// Client calls a goqr-compatible decode service (api.qrserver.com shape):
// it takes an uploaded image and returns the decoded text, which then goes
// through the same payload validation as a camera scan.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, Decode returns a canned dev payload
// without calling out.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Decode uploads image bytes and returns the decoded QR text.
func (c *Client) Decode(ctx context.Context, filename string, data []byte) (string, error) {
	if c.Skip {
		return "DEV-0000|Dev Student|dev@example.edu", nil
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image data required")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("decode service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("decode service error %s: %s", resp.Status, string(body))
	}

	// Response is a list of detected symbols per image.
	var out []struct {
		Symbol []struct {
			Data  string  `json:"data"`
			Error *string `json:"error"`
		} `json:"symbol"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out) == 0 || len(out[0].Symbol) == 0 {
		return "", ErrNoCode
	}
	sym := out[0].Symbol[0]
	if sym.Error != nil && *sym.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrNoCode, *sym.Error)
	}
	if sym.Data == "" {
		return "", ErrNoCode
	}
	return sym.Data, nil
}
