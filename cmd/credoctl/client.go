package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"credo/gateway/middleware"
)

// apiError is a non-2xx response from credod.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("credod returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("credod returned %d %s: %s", e.Status, e.Code, e.Message)
}

type client struct {
	base  *url.URL
	token string
	user  string
	http  *http.Client
}

func newClient(endpoint, token, user string, timeout time.Duration) (*client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(endpoint), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q must be http or https", endpoint)
	}
	return &client{
		base:  base,
		token: strings.TrimSpace(token),
		user:  strings.TrimSpace(user),
		http:  &http.Client{Timeout: timeout},
	}, nil
}

// do sends body as JSON and decodes a successful response into out.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := *c.base
	target.Path = c.base.Path + path
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.user != "" {
		req.Header.Set(middleware.DevUserHeader, c.user)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		var payload struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Code, apiErr.Message = payload.Code, payload.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
