package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// gatewayClient is a thin HTTP client over one gateway instance's push API.
type gatewayClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newGatewayClient() (*gatewayClient, error) {
	url := activeRemoteURL()
	if url == "" {
		return nil, fmt.Errorf("no gateway URL configured; set SGCTL_URL or run 'sgctl remote add'")
	}
	return &gatewayClient{
		baseURL: strings.TrimRight(url, "/"),
		token:   activeRemoteToken(),
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *gatewayClient) do(method, path string, body any) (map[string]any, int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var parsed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil && err != io.EOF {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return parsed, resp.StatusCode, nil
}

// doList is like do but unmarshals a JSON array response instead of an
// object (GET /instances and GET /channels both return arrays).
func (c *gatewayClient) doList(method, path string) ([]map[string]any, int, error) {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var parsed []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil && err != io.EOF {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return parsed, resp.StatusCode, nil
}
