// Package transport implements the collector wire protocol: signed,
// optionally gzip-compressed JSON POSTs to the init and events routes,
// with HTTP results mapped onto a compact outcome taxonomy. It also
// carries the rate-limited diagnostic side channel used to report SDK
// misuse back to the collector.
package transport

import (
	"bytes"
	"compress/gzip"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pulsekit/pulsekit/pkg/types"
)

const (
	initPath   = "init"
	eventsPath = "events"
)

// AnnotationsFunc supplies the device/user fields attached to every
// diagnostic event. Injected so this package never reaches into state.
type AnnotationsFunc func() types.Event

// Client speaks the collector protocol for one game key.
type Client struct {
	baseURL string
	gameKey string
	secret  string
	useGzip bool

	http    *http.Client
	limiter *errorLimiter

	annotations AnnotationsFunc
}

// New creates a collector client. baseURL is the scheme://host/version
// prefix without a trailing slash.
func New(baseURL, gameKey, secret string, timeout time.Duration, useGzip bool, annotations AnnotationsFunc) *Client {
	return &Client{
		baseURL:     baseURL,
		gameKey:     gameKey,
		secret:      secret,
		useGzip:     useGzip,
		http:        &http.Client{Timeout: timeout},
		limiter:     newErrorLimiter(),
		annotations: annotations,
	}
}

// SendInit posts the handshake request. configsHash, when non-empty, is
// forwarded so the collector can omit an unchanged remote config set.
func (c *Client) SendInit(annotations types.Event, configsHash string) (Outcome, map[string]any) {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.gameKey, initPath)
	if configsHash != "" {
		url += "?configs_hash=" + configsHash
	}
	return c.post(url, annotations)
}

// SendEvents posts a batch of fully annotated events.
func (c *Client) SendEvents(events []types.Event) (Outcome, map[string]any) {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.gameKey, eventsPath)
	return c.post(url, events)
}

// SendSDKError posts one diagnostic event on a background goroutine.
// Sends beyond the per-tuple cap are dropped, and delivery failures are
// swallowed: diagnostics must never feed back into the error path.
func (c *Client) SendSDKError(category ErrorCategory, area ErrorArea, action ErrorAction, parameter ErrorParameter, reason string) {
	if !c.limiter.allow(category, area, action) {
		log.Printf("transport: sdk error cap reached for %s/%s, dropping", category, area)
		return
	}

	event := types.Event{}
	if c.annotations != nil {
		event.Merge(c.annotations())
	}
	event["category"] = "sdk_error"
	event["error_category"] = category.String()
	event["error_area"] = area.String()
	event["error_action"] = action.String()
	if parameter != 0 {
		event["error_parameter"] = parameter.String()
	}
	if reason != "" {
		event["reason"] = reason
	}

	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.gameKey, eventsPath)
	go func() {
		outcome, _ := c.post(url, []types.Event{event})
		if !outcome.Accepted() {
			log.Printf("transport: sdk error event not delivered: %s", outcome)
		}
	}()
}

// post serializes body, signs the bytes as sent (after compression) and
// maps the HTTP exchange to an outcome plus the decoded response body.
func (c *Client) post(url string, body any) (Outcome, map[string]any) {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Printf("transport: failed to encode request body: %v", err)
		return JSONEncodeFailed, nil
	}

	sent := payload
	if c.useGzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			log.Printf("transport: gzip failed: %v", err)
			return JSONEncodeFailed, nil
		}
		if err := zw.Close(); err != nil {
			log.Printf("transport: gzip failed: %v", err)
			return JSONEncodeFailed, nil
		}
		sent = buf.Bytes()
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(sent))
	if err != nil {
		log.Printf("transport: failed to build request: %v", err)
		return NoResponse, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", Sign(sent, c.secret))
	if c.useGzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("transport: request failed: %v", err)
		return NoResponse, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("transport: failed to read response: %v", err)
		return NoResponse, nil
	}

	outcome := classify(resp.StatusCode)
	if len(raw) == 0 {
		if outcome.Accepted() {
			return BadResponse, nil
		}
		return outcome, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Batch rejections come back as a JSON array of per-event
		// verdicts. Wrap it so callers always see an object.
		var list []any
		if listErr := json.Unmarshal(raw, &list); listErr == nil {
			return outcome, map[string]any{"events": list}
		}
		if outcome.Accepted() {
			log.Printf("transport: undecodable response body: %v", err)
			return JSONDecodeFailed, nil
		}
		return outcome, nil
	}
	return outcome, decoded
}

func classify(status int) Outcome {
	switch status {
	case http.StatusOK:
		return Ok
	case http.StatusCreated:
		return Created
	case http.StatusBadRequest:
		return BadRequest
	case http.StatusUnauthorized:
		return Unauthorized
	case http.StatusRequestTimeout:
		return RequestTimeout
	case http.StatusInternalServerError:
		return InternalServerError
	default:
		return UnknownResponseCode
	}
}

// Sign computes the Authorization header value: base64 of the
// HMAC-SHA256 of the body bytes exactly as sent on the wire.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
