// Package client talks to the parking service HTTP API.
package client

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient takes the service listen address, with or without scheme.
func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL:    strings.TrimSuffix(addr, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Send issues a request and returns the response body. Non-2xx replies
// become errors carrying the body.
func (c *Client) Send(method string, path string, data string) (string, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   data,
		"url":    c.baseURL,
	}).Debug("sending request")

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return "", ErrServiceNotRunning
		}
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	text := string(b)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode == http.StatusBadRequest:
		return "", fmt.Errorf("%w: %s", ErrBadRequest, text)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("got %d: %s", resp.StatusCode, text)
	}

	return text, nil
}

func (c *Client) Get(path string) (string, error) {
	return c.Send(http.MethodGet, path, "")
}

func (c *Client) Put(path string, data string) (string, error) {
	return c.Send(http.MethodPut, path, data)
}

func (c *Client) Post(path string, data string) (string, error) {
	return c.Send(http.MethodPost, path, data)
}
