package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Client talks to the tpbridge daemon over its unix socket.
type Client struct {
	socketPath string
	httpClient *http.Client
}

// NewClient creates a Client for the daemon listening on socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					conn, err := d.DialContext(ctx, "unix", socketPath)
					if err != nil {
						if errors.Is(err, fs.ErrNotExist) {
							return nil, ErrDaemonNotRunning
						}
						if errors.Is(err, fs.ErrPermission) {
							return nil, ErrPermissionDenied
						}
						logrus.Errorf("failed to connect to unix socket: %v", err)
						return nil, err
					}
					return conn, nil
				},
			},
		},
	}
}

// Send sends a request to the daemon and returns the raw body.
func (c *Client) Send(method string, path string, data string) (string, error) {
	b, _, err := c.send(method, path, data, nil)
	return string(b), err
}

func (c *Client) send(method, path, data string, header http.Header) ([]byte, http.Header, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   data,
		"unix":   c.socketPath,
	}).Debug("sending request")

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut:
	default:
		return nil, nil, fmt.Errorf("unknown method: %s", method)
	}

	req, err := http.NewRequest(method, "http://unix"+path, strings.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return b, resp.Header, fmt.Errorf("%w: %s", ErrNotFound, string(b))
	case resp.StatusCode == http.StatusServiceUnavailable:
		return b, resp.Header, fmt.Errorf("%w: %s", ErrUnavailable, string(b))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return b, resp.Header, fmt.Errorf("got %d: %s", resp.StatusCode, string(b))
	}

	return b, resp.Header, nil
}

// Get sends a GET request to the daemon.
func (c *Client) Get(path string) (string, error) {
	return c.Send(http.MethodGet, path, "")
}

// Put sends a PUT request to the daemon.
func (c *Client) Put(path string, data string) (string, error) {
	return c.Send(http.MethodPut, path, data)
}

// Post sends a POST request to the daemon.
func (c *Client) Post(path string, data string) (string, error) {
	return c.Send(http.MethodPost, path, data)
}
