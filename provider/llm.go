// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Classification is the LLM provider's answer for one prompt.
type Classification struct {
	// Classification is the provider's label, "high" or "low".
	Classification string `json:"classification"`

	// Confidence is the provider's confidence in [0, 1].
	Confidence float64 `json:"confidence"`
}

// llmClient talks to the black-box inference endpoint:
// POST {base}/inference {"prompt": ...} -> {classification, confidence}.
type llmClient struct {
	baseURL    string
	httpClient *http.Client
}

func (c *llmClient) infer(ctx context.Context, prompt string) (*Classification, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, fmt.Errorf("provider: marshaling inference request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/inference", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: creating inference request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("provider: sending inference request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, readHTTPError(response)
	}

	var classification Classification
	if err := decodeBody(response.Body, &classification); err != nil {
		return nil, fmt.Errorf("provider: decoding inference response: %w", err)
	}
	return &classification, nil
}

// maxResponseSize bounds provider response body reads. Legitimate
// responses are tiny; the bound only guards against a misbehaving
// server streaming forever.
const maxResponseSize int64 = 4 << 20

// decodeBody reads a bounded response body and JSON-decodes it.
func decodeBody(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// readHTTPError drains a bounded error body into an HTTPError.
func readHTTPError(response *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
	return &HTTPError{
		StatusCode: response.StatusCode,
		Body:       string(bytes.TrimSpace(data)),
	}
}
