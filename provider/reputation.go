// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Reputation is the domain-reputation provider's answer for one URL.
type Reputation struct {
	// Safe is the provider's binary call.
	Safe bool `json:"safe"`

	// Score is the provider's confidence in its call, [0, 1].
	Score float64 `json:"score"`
}

// reputationClient talks to the reputation endpoint:
// GET {base}/domain/check?url=... -> {safe, score}.
type reputationClient struct {
	baseURL    string
	httpClient *http.Client
}

func (c *reputationClient) check(ctx context.Context, target string) (*Reputation, error) {
	endpoint := c.baseURL + "/domain/check?url=" + url.QueryEscape(target)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: creating reputation request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("provider: sending reputation request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, readHTTPError(response)
	}

	var reputation Reputation
	if err := decodeBody(response.Body, &reputation); err != nil {
		return nil, fmt.Errorf("provider: decoding reputation response: %w", err)
	}
	return &reputation, nil
}
