//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

// Package aiquery provides the HTTP client for the downstream AI query
// service. Every failure is mapped into a sentinel value stored in a flow
// variable; the client never returns an error to the engine loop.
package aiquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"trpc.group/trpc-go/flow-controller/log"
)

// defaultTimeout is the total budget for one AI call.
const defaultTimeout = 60 * time.Second

// Sentinel prefixes recorded into the saveResponseTo variable. The Portuguese
// wording is part of the flow-authoring contract, flows branch on it.
const (
	ErrTimeout      = "ERRO_IA_TIMEOUT"
	ErrAPIPrefix    = "ERRO_IA_API: "
	ErrConnPrefix   = "ERRO_IA_CONEXAO: "
	ErrOtherPrefix  = "ERRO_IA_INESPERADO: "
	ErrNoServiceURL = "ERRO_CONFIG_CTRL: URL da API de IA não configurada."
)

// Request is the outbound payload of the AI query service contract.
// Optional fields are omitted when unset.
type Request struct {
	Prompt        string   `json:"prompt"`
	APIKey        string   `json:"apiKey"`
	SystemMessage string   `json:"systemMessage,omitempty"`
	Model         string   `json:"model,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"maxTokens,omitempty"`
}

type response struct {
	Success  bool    `json:"success"`
	Response *string `json:"response"`
	Details  string  `json:"details"`
	Message  string  `json:"message"`
}

// Client queries the AI service. The underlying http.Client pools
// connections; each call still carries the full timeout budget.
type Client struct {
	url        string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout overrides the per-call timeout budget.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates an AI query client for the given service URL. An empty
// URL is allowed; every Query then yields the configuration sentinel so the
// flow can still route through its error edge.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a service URL is set.
func (c *Client) Configured() bool {
	return c != nil && c.url != ""
}

// Query performs one AI call and returns the value to store in the flow
// variable. ok is true only for a successful response; the engine uses it to
// route through the error edge.
func (c *Client) Query(ctx context.Context, req Request) (value string, ok bool) {
	if !c.Configured() {
		log.Error("aiquery: service URL is not configured")
		return ErrNoServiceURL, false
	}

	body, err := json.Marshal(req)
	if err != nil {
		return ErrOtherPrefix + truncate(err.Error(), 100), false
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(body))
	if err != nil {
		return ErrOtherPrefix + truncate(err.Error(), 100), false
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			log.Errorf("aiquery: timeout after %s calling AI service", c.httpClient.Timeout)
			return ErrTimeout, false
		}
		log.Errorf("aiquery: request failed: %v", err)
		return ErrConnPrefix + truncate(err.Error(), 100), false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		detail := fmt.Sprintf("status %d: %s", resp.StatusCode, string(bodyBytes))
		log.Errorf("aiquery: non-2xx from AI service: %s", detail)
		return ErrConnPrefix + truncate(detail, 100), false
	}

	var apiResp response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		log.Errorf("aiquery: decode response: %v", err)
		return ErrOtherPrefix + truncate(err.Error(), 100), false
	}

	if apiResp.Success && apiResp.Response != nil {
		return *apiResp.Response, true
	}

	detail := apiResp.Details
	if detail == "" {
		detail = apiResp.Message
	}
	if detail == "" {
		detail = "Erro da API de IA."
	}
	log.Errorf("aiquery: AI service reported failure: %s", detail)
	return ErrAPIPrefix + truncate(detail, 200), false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// truncate limits s to max characters (not bytes).
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
