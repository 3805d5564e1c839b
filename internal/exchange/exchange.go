package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marginbot/internal/config"
	"marginbot/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

const (
	maxRetries = 3
	retryDelay = 2 * time.Second

	headerKey        = "ACCESS-KEY"
	headerSign       = "ACCESS-SIGN"
	headerTimestamp  = "ACCESS-TIMESTAMP"
	headerPassphrase = "ACCESS-PASSPHRASE"

	codeOK = "00000"
)

// Client talks to the margin venue's authenticated REST API. Every
// request carries the KEY/SIGN/TIMESTAMP/PASSPHRASE header set; the
// signature covers timestamp + method + path + body.
type Client struct {
	BaseURL  string
	Currency string

	apiKey     string
	passphrase string
	signer     *Signer
	clock      *Clock
	httpc      *http.Client

	fallbackBalance float64
	fallbackPrice   float64
}

func New(cfg config.ExchangeConfig) (*Client, error) {
	signer, err := NewSigner(cfg.APISecret)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, errors.New("exchange: API key is empty")
	}

	return &Client{
		BaseURL:         cfg.BaseURL,
		Currency:        cfg.Currency,
		apiKey:          cfg.APIKey,
		passphrase:      cfg.Passphrase,
		signer:          signer,
		clock:           NewClock(cfg.BaseURL, cfg.ParsedTimeout),
		httpc:           &http.Client{Timeout: cfg.ParsedTimeout},
		fallbackBalance: cfg.FallbackBalance,
		fallbackPrice:   cfg.FallbackPrice,
	}, nil
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Balance fetches the available quote balance. On failure it returns the
// configured fallback constant so a flaky balance endpoint degrades
// sizing instead of dropping the signal; a zero fallback disables this
// and surfaces the error.
func (c *Client) Balance(ctx context.Context, currency string) (models.AccountSnapshot, error) {
	snap := models.AccountSnapshot{Currency: currency, FetchedAt: time.Now()}

	q := url.Values{}
	q.Set("currency", currency)
	data, err := c.getWithRetry(ctx, "/api/v2/account/balance", q)
	if err == nil {
		var result struct {
			Available string `json:"available"`
		}
		if jsonErr := json.Unmarshal(data, &result); jsonErr != nil {
			err = fmt.Errorf("failed to parse balance response: %v", jsonErr)
		} else if snap.Available, err = strconv.ParseFloat(result.Available, 64); err == nil {
			return snap, nil
		}
	}

	if c.fallbackBalance > 0 {
		log.WithError(err).Warnf("Balance fetch failed, using fallback balance %.2f", c.fallbackBalance)
		snap.Available = c.fallbackBalance
		return snap, nil
	}
	return snap, errors.Wrap(err, "failed to get balance")
}

// LastPrice fetches the most recent trade price, with the same fallback
// policy as Balance.
func (c *Client) LastPrice(ctx context.Context, pair string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", pair)
	data, err := c.getWithRetry(ctx, "/api/v2/market/ticker", q)
	if err == nil {
		var result struct {
			Last string `json:"last"`
		}
		if jsonErr := json.Unmarshal(data, &result); jsonErr != nil {
			err = fmt.Errorf("failed to parse ticker response: %v", jsonErr)
		} else {
			var price float64
			if price, err = strconv.ParseFloat(result.Last, 64); err == nil {
				return price, nil
			}
		}
	}

	if c.fallbackPrice > 0 {
		log.WithError(err).Warnf("Price fetch failed, using fallback price %.2f", c.fallbackPrice)
		return c.fallbackPrice, nil
	}
	return 0, errors.Wrap(err, "failed to get last price")
}

// Candles fetches the most recent OHLC bars. Venue rows are
// [ts, open, high, low, close, volume] string arrays, newest first.
func (c *Client) Candles(ctx context.Context, pair, barSize string, limit int) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("symbol", pair)
	q.Set("granularity", barSize)
	q.Set("limit", strconv.Itoa(limit))

	data, err := c.getWithRetry(ctx, "/api/v2/market/candles", q)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get candles")
	}

	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse candles response: %v", err)
	}

	var candles []models.Candle
	for _, row := range rows {
		if len(row) < 5 {
			log.Warnf("Skipping malformed candle row with %d fields", len(row))
			continue
		}
		var candle models.Candle
		if candle.Open, err = strconv.ParseFloat(row[1], 64); err != nil {
			return nil, fmt.Errorf("failed to parse candle open %q: %v", row[1], err)
		}
		if candle.High, err = strconv.ParseFloat(row[2], 64); err != nil {
			return nil, fmt.Errorf("failed to parse candle high %q: %v", row[2], err)
		}
		if candle.Low, err = strconv.ParseFloat(row[3], 64); err != nil {
			return nil, fmt.Errorf("failed to parse candle low %q: %v", row[3], err)
		}
		if candle.Close, err = strconv.ParseFloat(row[4], 64); err != nil {
			return nil, fmt.Errorf("failed to parse candle close %q: %v", row[4], err)
		}
		candles = append(candles, candle)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles in response")
	}
	return candles, nil
}

// PriceSnapshot couples the last price with the high/low extremes of the
// recent candle window.
func (c *Client) PriceSnapshot(ctx context.Context, pair string, lookback int, barSize string) (models.PriceSnapshot, error) {
	snap := models.PriceSnapshot{Pair: pair, FetchedAt: time.Now()}

	last, err := c.LastPrice(ctx, pair)
	if err != nil {
		return snap, err
	}
	snap.Last = last

	candles, err := c.Candles(ctx, pair, barSize, lookback)
	if err != nil {
		return snap, err
	}
	snap.WindowHigh = candles[0].High
	snap.WindowLow = candles[0].Low
	for _, candle := range candles[1:] {
		if candle.High > snap.WindowHigh {
			snap.WindowHigh = candle.High
		}
		if candle.Low < snap.WindowLow {
			snap.WindowLow = candle.Low
		}
	}
	return snap, nil
}

// Volatility returns the candle-window range as a percent of its low.
// Errors surface to the caller; the admission gate decides whether a
// failed fetch admits or blocks the trade.
func (c *Client) Volatility(ctx context.Context, pair string, lookback int, barSize string) (float64, error) {
	snap, err := c.PriceSnapshot(ctx, pair, lookback, barSize)
	if err != nil {
		return 0, err
	}
	return snap.VolatilityPct(), nil
}

func (c *Client) SetLeverage(ctx context.Context, pair string, leverage int) error {
	payload := map[string]interface{}{
		"symbol":   pair,
		"leverage": strconv.Itoa(leverage),
	}
	_, err := c.signedRequest(ctx, "POST", "/api/v2/account/leverage", nil, payload)
	return errors.Wrap(err, "failed to set leverage")
}

type orderRequest struct {
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	OrderType    string `json:"orderType"`
	Size         string `json:"size"`
	TriggerPrice string `json:"triggerPrice,omitempty"`
	ReduceOnly   bool   `json:"reduceOnly,omitempty"`
	ClientOid    string `json:"clientOid"`
}

func buildOrderRequest(order *models.SizedOrder) orderRequest {
	req := orderRequest{
		Symbol:     order.Pair,
		Side:       string(order.Side),
		OrderType:  string(order.Type),
		Size:       strconv.FormatFloat(order.Size, 'f', -1, 64),
		ReduceOnly: order.ReduceOnly,
		ClientOid:  order.ClientOID,
	}
	if order.TriggerPrice > 0 {
		req.TriggerPrice = strconv.FormatFloat(order.TriggerPrice, 'f', -1, 64)
	}
	return req
}

// PlaceOrder submits one order. Never retried here: blindly resubmitting
// a market order risks duplicate fills, so rejections and network errors
// surface to the orchestrator as-is.
func (c *Client) PlaceOrder(ctx context.Context, order *models.SizedOrder) (*models.PlacedOrder, error) {
	data, err := c.signedRequest(ctx, "POST", "/api/v2/trade/orders", nil, buildOrderRequest(order))
	if err != nil {
		return nil, err
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %v", err)
	}

	return &models.PlacedOrder{
		OrderID:      result.OrderID,
		ClientOID:    order.ClientOID,
		Pair:         order.Pair,
		Side:         order.Side,
		Type:         order.Type,
		Size:         order.Size,
		TriggerPrice: order.TriggerPrice,
		ReduceOnly:   order.ReduceOnly,
		Status:       models.OrderStatusPlaced,
		Timestamp:    time.Now(),
	}, nil
}

// PreviewOrder builds the exact signed request PlaceOrder would send,
// without sending it. Dry-run signals echo this to the operator.
func (c *Client) PreviewOrder(ctx context.Context, order *models.SizedOrder) (*models.OrderPreview, error) {
	body, err := json.Marshal(buildOrderRequest(order))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %v", err)
	}

	path := "/api/v2/trade/orders"
	timestamp := c.clock.Timestamp(ctx)
	return &models.OrderPreview{
		Method: "POST",
		Path:   path,
		Body:   string(body),
		Headers: map[string]string{
			headerKey:        c.apiKey,
			headerSign:       c.signer.Sign(timestamp, "POST", path, string(body)),
			headerTimestamp:  timestamp,
			headerPassphrase: c.passphrase,
		},
	}, nil
}

// getWithRetry wraps idempotent GET endpoints with the standard retry
// loop. Writes (orders, leverage) never go through here.
func (c *Client) getWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var data []byte
	var err error

	for i := 0; i < maxRetries; i++ {
		data, err = c.signedRequest(ctx, "GET", path, query, nil)
		if err == nil {
			return data, nil
		}
		if _, ok := err.(*RejectedError); ok {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		log.WithError(err).Warnf("Request to %s failed, retrying in %v...", path, retryDelay)
		time.Sleep(retryDelay)
	}
	return nil, errors.Wrapf(err, "request to %s failed after retries", path)
}

func (c *Client) signedRequest(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	var reqBody []byte
	var err error

	if payload != nil {
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request data: %v", err)
		}
	}

	requestPath := path
	if len(query) > 0 {
		requestPath = path + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+requestPath, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %v", err)
	}

	timestamp := c.clock.Timestamp(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerKey, c.apiKey)
	req.Header.Set(headerSign, c.signer.Sign(timestamp, method, requestPath, string(reqBody)))
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerPassphrase, c.passphrase)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &RejectedError{Code: strconv.Itoa(resp.StatusCode), Message: string(respBody)}
		}
		return nil, fmt.Errorf("failed to parse response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK || env.Code != codeOK {
		return nil, &RejectedError{Code: env.Code, Message: env.Msg}
	}

	return env.Data, nil
}
