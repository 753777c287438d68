package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/logger"
	"github.com/jpillora/backoff"
)

const restAttempts = 3

// signFunc decorates an outgoing request with venue authentication. body is
// the raw request payload, empty for GETs.
type signFunc func(req *http.Request, body []byte) error

// restClient is the shared HTTP plumbing for the SDK-less venues. Requests
// retry on transport errors and 5xx with jittered backoff; 429 and 5xx
// surface as transient errors so the scheduler reschedules instead of
// dying.
type restClient struct {
	base string
	http *http.Client
	log  logger.Logger
	sign signFunc
}

func newRESTClient(base string, log logger.Logger, sign signFunc) *restClient {
	return &restClient{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log,
		sign: sign,
	}
}

func (c *restClient) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *restClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *restClient) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	retry := &backoff.Backoff{Min: 250 * time.Millisecond, Max: 2 * time.Second, Jitter: true}

	var lastErr error
	for attempt := 0; attempt < restAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retry.Duration()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		resp, err := c.roundTrip(ctx, method, path, query, body)
		if err != nil {
			lastErr = err
			c.log.WithError(err).Debugf("%s %s failed, attempt %d", method, path, attempt+1)
			continue
		}

		payload, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = core.Transient(fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, payload))
			continue
		default:
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, payload)
		}
	}
	return lastErr
}

func (c *restClient) roundTrip(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sign != nil {
		if err := c.sign(req, body); err != nil {
			return nil, err
		}
	}

	return c.http.Do(req)
}
