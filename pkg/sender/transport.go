/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: transport.go
Description: HTTP transport for Akaylee CrashKit. Posts serialized crash
payloads to the ingestion endpoint with a bounded client timeout. The
transport only moves bytes; retries, backoff and acknowledgement live in
the sender.
*/

package sender

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPTransport posts payloads to a base URL
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport against baseURL with the given timeout
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Post sends body to path relative to the base URL and returns the status code
func (t *HTTPTransport) Post(path string, body []byte, headers map[string]string) (int, error) {
	url := t.baseURL + path
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to post crash payload: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
