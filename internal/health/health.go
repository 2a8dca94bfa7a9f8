// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package health gates deployments on the app's health endpoint. A release
// only counts as successful once /api/health answers 200.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// client is the HTTP client used for probes. Package-level so tests can
// shorten timeouts.
var client = &http.Client{Timeout: 5 * time.Second}

// Probe performs a single GET against url and returns an error unless the
// response is 200 OK.
func Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned %s", resp.Status)
	}
	return nil
}

// Wait polls url until it answers 200 or attempts are exhausted. It sleeps
// delay between attempts and returns the last probe error on failure.
func Wait(ctx context.Context, url string, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = Probe(ctx, url); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("app did not become healthy after %d attempts: %w", attempts, lastErr)
}
