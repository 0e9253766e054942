package floorsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// backendClient posts zone completions to the core API. The bridge is the
// only writer on its subscription, so a modest client-side rate cap is
// enough to keep a burst of floor scans from stampeding the backend.
type backendClient struct {
	baseURL string
	http    *http.Client
	limiter <-chan time.Time
}

func newBackendClient() (*backendClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("FACTORY_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	ratePerMin := int64(600)
	if v := strings.TrimSpace(os.Getenv("FLOOR_SYNC_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ratePerMin = n
		}
	}
	interval := time.Minute / time.Duration(ratePerMin)

	return &backendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: time.Tick(interval),
	}, nil
}

type zoneCompletionRequest struct {
	Vin         string `json:"vin"`
	ZoneCode    string `json:"zone_code"`
	CarCode     string `json:"car_code,omitempty"`
	CompletedBy string `json:"completed_by,omitempty"`
}

// deliveryError keeps the backend's status code so the worker can tell a
// retryable failure from a permanent rejection.
type deliveryError struct {
	StatusCode int
	Body       string
}

func (e *deliveryError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether a failed delivery is worth another attempt.
// 4xx means the backend understood and rejected the completion; sending it
// again yields the same answer. 429 and every 5xx are transient.
func Retryable(err error) bool {
	var de *deliveryError
	if errors.As(err, &de) {
		if de.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return de.StatusCode >= 500
	}
	return true
}

func (c *backendClient) postZoneCompletion(ctx context.Context, businessId string, req zoneCompletionRequest) error {
	<-c.limiter

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/production/zone-completions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Business-Id", businessId)
	if req.CompletedBy != "" {
		httpReq.Header.Set("X-Operator", req.CompletedBy)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &deliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return nil
}
