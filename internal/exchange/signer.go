package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ErrMissingSecret means the API secret was not provided. Signing is
// impossible without it, so the process refuses to start.
var ErrMissingSecret = errors.New("exchange: API secret is empty")

// Signer computes the venue's request signature:
// base64(HMAC-SHA256(secret, timestamp + method + path + body)).
type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign is deterministic: fixed inputs always produce the same signature.
func (s *Signer) Sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Clock produces authentication timestamps in venue server time
// (milliseconds since epoch, as a decimal string). The venue's time
// endpoint is preferred; local wall-clock time is the degraded fallback
// so that a flaky time endpoint never blocks trading.
type Clock struct {
	baseURL string
	httpc   *http.Client
	now     func() time.Time
}

func NewClock(baseURL string, timeout time.Duration) *Clock {
	return &Clock{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

func (c *Clock) Timestamp(ctx context.Context) string {
	ts, err := c.serverTime(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch server time, falling back to local clock")
		return strconv.FormatInt(c.now().UnixMilli(), 10)
	}
	return ts
}

func (c *Clock) serverTime(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/api/v2/public/time", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create server time request: %v", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get server time: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get server time, status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read server time response: %v", err)
	}

	var result struct {
		Data struct {
			ServerTime string `json:"serverTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse server time response: %v", err)
	}
	if result.Data.ServerTime == "" {
		return "", fmt.Errorf("server time not found in response")
	}

	return result.Data.ServerTime, nil
}
