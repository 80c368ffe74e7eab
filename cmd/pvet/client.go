package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

// getJSON fetches url and decodes the JSON body into out. Non-200
// responses surface the server's error envelope when one is present.
func getJSON(url string, out interface{}) error {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var envelope v1.ErrorEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr == nil && envelope.Error.Message != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, envelope.Error.Message)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
