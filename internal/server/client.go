package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client calls the OTP endpoints of a running server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// RequestError is a non-2xx answer from the server.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// SendResult is the server's answer to a send request.
type SendResult struct {
	Message string
	// DevelopmentOTP is only set outside production when SMS delivery failed.
	DevelopmentOTP string
}

// VerifyResult is the server's answer to a successful verification.
type VerifyResult struct {
	Message string
	User    *User
}

// Send asks the server to issue and deliver a code to number.
func (c *Client) Send(ctx context.Context, number string) (SendResult, error) {
	var resp sendResponse
	if err := c.post(ctx, "/otp/send", sendRequest{Phone: number}, &resp); err != nil {
		return SendResult{}, err
	}
	return SendResult{Message: resp.Message, DevelopmentOTP: resp.DevelopmentOTP}, nil
}

// Verify checks code for number.
func (c *Client) Verify(ctx context.Context, number, code string) (VerifyResult, error) {
	var resp verifyResponse
	if err := c.post(ctx, "/otp/verify", verifyRequest{Phone: number, Code: code}, &resp); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{Message: resp.Message, User: resp.User}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unable to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode/100 != 2 {
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &RequestError{Status: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unable to decode response: %w", err)
	}
	return nil
}
