package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	debuggerPollInterval = 500 * time.Millisecond
	debuggerMaxRetries   = 20 // 10 seconds total
)

// versionInfo is the subset of /json/version we use
type versionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// waitForDebugger polls the CDP /json/version endpoint until the browser answers
func waitForDebugger(ctx context.Context, hostPort string) (*versionInfo, error) {
	url := fmt.Sprintf("http://%s/json/version", hostPort)
	client := &http.Client{Timeout: 2 * time.Second}

	for i := 0; i < debuggerMaxRetries; i++ {
		info, err := fetchVersion(ctx, client, url)
		if err == nil {
			return info, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(debuggerPollInterval):
		}
	}

	return nil, fmt.Errorf("browser did not become ready after %d retries", debuggerMaxRetries)
}

func fetchVersion(ctx context.Context, client *http.Client, url string) (*versionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var info versionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode version info: %w", err)
	}
	return &info, nil
}
