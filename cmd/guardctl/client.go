package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/capital-guard/internal/balance"
	"github.com/ducminhle1904/capital-guard/internal/monitoring"
	"github.com/ducminhle1904/capital-guard/internal/safety"
)

// Client talks to the guard control API
type Client struct {
	baseURL  string
	token    string
	operator string
	http     *http.Client
}

func NewClient(baseURL, token, operator string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		operator: operator,
		http:     &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx answer from the guard
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("guard returned %d: %s (request %s)", e.Status, e.Message, e.RequestID)
}

func (c *Client) Status() (safety.BreakerStatus, error) {
	var status safety.BreakerStatus
	err := c.do(http.MethodGet, "/breaker", nil, &status, http.StatusOK)
	return status, err
}

// Recover returns the breaker state after recovery. A breaker that was not
// broken is reported as an error.
func (c *Client) Recover() (safety.BreakerStatus, error) {
	var status safety.BreakerStatus
	err := c.do(http.MethodPost, "/breaker/recover", nil, &status, http.StatusOK)
	return status, err
}

func (c *Client) Trip(reason string) (safety.BreakerStatus, error) {
	var status safety.BreakerStatus
	err := c.do(http.MethodPost, "/breaker/trip", monitoring.TripRequest{Reason: reason}, &status, http.StatusOK)
	return status, err
}

func (c *Client) Balances() (map[string]map[string]balance.Summary, error) {
	var summary map[string]map[string]balance.Summary
	err := c.do(http.MethodGet, "/balances", nil, &summary, http.StatusOK)
	return summary, err
}

func (c *Client) do(method, path string, body interface{}, out interface{}, want int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.operator != "" {
		req.Header.Set(monitoring.OperatorHeader, c.operator)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != want {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: requestID}
		var payload struct {
			Error string `json:"error"`
			State string `json:"state"`
		}
		if json.Unmarshal(data, &payload) == nil {
			switch {
			case payload.Error != "":
				apiErr.Message = payload.Error
			case payload.State != "":
				apiErr.Message = "breaker is " + payload.State
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	return json.Unmarshal(data, out)
}
