package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/zentiam/assistd/internal/config"
)

type apiClient struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		adminToken: os.Getenv("ASSISTD_ADMIN_TOKEN"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) do(method, path string, body any, admin bool) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if admin {
		if c.adminToken == "" {
			return nil, fmt.Errorf("ASSISTD_ADMIN_TOKEN is not set")
		}
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable — is assistd running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(path string) (*http.Response, error) {
	return c.do("GET", path, nil, false)
}

func (c *apiClient) post(path string, body any) (*http.Response, error) {
	return c.do("POST", path, body, false)
}

func (c *apiClient) adminGet(path string) (*http.Response, error) {
	return c.do("GET", path, nil, true)
}

func (c *apiClient) adminPost(path string, body any) (*http.Response, error) {
	return c.do("POST", path, body, true)
}

func (c *apiClient) adminPut(path string, body any) (*http.Response, error) {
	return c.do("PUT", path, body, true)
}

func (c *apiClient) adminDelete(path string) (*http.Response, error) {
	return c.do("DELETE", path, nil, true)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
