package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"intake-pipeline/backend/pkg/models"
)

const maxResponseBytes = 8 << 20

// NormalizeResponse is the aggregate outcome reported by the normalization service.
type NormalizeResponse struct {
	Success bool
	// Phases counts the phase summaries carried next to the success flag.
	Phases int
	// Body is the full response document, passed through as the job result.
	Body json.RawMessage
}

// HTTPNormalizationClient is an HTTP implementation of the NormalizationClient interface.
type HTTPNormalizationClient struct {
	url        string
	httpClient *http.Client
}

// NewHTTPNormalizationClient creates a new HTTPNormalizationClient. The call
// deadline comes from the request context, not the http.Client.
func NewHTTPNormalizationClient(url string) *HTTPNormalizationClient {
	return &HTTPNormalizationClient{url: url, httpClient: &http.Client{}}
}

// Normalize posts the input to {url}/api/normalize.
func (c *HTTPNormalizationClient) Normalize(ctx context.Context, input models.PipelineInput) (*NormalizeResponse, error) {
	requestBody, err := json.Marshal(input)
	if err != nil {
		return nil, &InvocationError{Class: ClassInvalidResponse, Message: "failed to marshal request body", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/normalize", bytes.NewReader(requestBody))
	if err != nil {
		return nil, &InvocationError{Class: ClassUnavailable, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &InvocationError{Class: classifyTransport(ctx, err), Message: "failed to reach normalization service", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &InvocationError{Class: classifyTransport(ctx, err), Message: "failed to read response body", Cause: err}
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		if resp.StatusCode/100 != 2 {
			return nil, &InvocationError{Class: ClassRemoteRejected, Message: fmt.Sprintf("status code %d", resp.StatusCode)}
		}
		return nil, &InvocationError{Class: ClassInvalidResponse, Message: "failed to decode response body", Cause: err}
	}

	var success bool
	if v, ok := body["success"]; ok {
		_ = json.Unmarshal(v, &success)
	}
	if resp.StatusCode/100 != 2 || !success {
		return nil, &InvocationError{Class: ClassRemoteRejected, Message: rejectionMessage(resp.StatusCode, body)}
	}

	return &NormalizeResponse{
		Success: true,
		Phases:  len(body) - 1,
		Body:    raw,
	}, nil
}

func classifyTransport(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ClassConnectionRefused
	}
	return ClassUnavailable
}

func rejectionMessage(code int, body map[string]json.RawMessage) string {
	for _, key := range []string{"error", "message"} {
		if v, ok := body[key]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil && s != "" {
				return s
			}
		}
	}
	if code/100 != 2 {
		return fmt.Sprintf("status code %d", code)
	}
	return "pipeline reported failure"
}
