package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marginbot/internal/config"
	"marginbot/internal/models"
)

func newTestClient(t *testing.T, baseURL string, fallbackBalance, fallbackPrice float64) *Client {
	t.Helper()
	client, err := New(config.ExchangeConfig{
		BaseURL:         baseURL,
		Currency:        "USDT",
		APIKey:          "test-key",
		APISecret:       "test-secret",
		Passphrase:      "test-pass",
		ParsedTimeout:   time.Second,
		FallbackBalance: fallbackBalance,
		FallbackPrice:   fallbackPrice,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client
}

// serveTime answers the clock's server-time lookup; every signed request
// makes one.
func serveTime(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code": "00000",
		"data": map[string]string{"serverTime": "1700000000000"},
	})
}

func writeOK(w http.ResponseWriter, data interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code": "00000",
		"msg":  "success",
		"data": data,
	})
}

func writeRejection(w http.ResponseWriter, code, msg string) {
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "msg": msg})
}

func TestBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/public/time":
			serveTime(w)
		case "/api/v2/account/balance":
			if got := r.URL.Query().Get("currency"); got != "USDT" {
				t.Errorf("currency query = %q, want USDT", got)
			}
			writeOK(w, map[string]string{"available": "1000"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0, 0)
	snap, err := client.Balance(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if snap.Available != 1000 {
		t.Errorf("Available = %v, want 1000", snap.Available)
	}
}

func TestBalanceFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/public/time" {
			serveTime(w)
			return
		}
		writeRejection(w, "50001", "service unavailable")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 500, 0)
	snap, err := client.Balance(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("Balance should fall back, got error: %v", err)
	}
	if snap.Available != 500 {
		t.Errorf("Available = %v, want fallback 500", snap.Available)
	}
}

func TestBalanceErrorWithoutFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/public/time" {
			serveTime(w)
			return
		}
		writeRejection(w, "50001", "service unavailable")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0, 0)
	if _, err := client.Balance(context.Background(), "USDT"); err == nil {
		t.Fatal("Balance with zero fallback should surface the error")
	}
}

func TestLastPriceFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/public/time" {
			serveTime(w)
			return
		}
		writeRejection(w, "50001", "service unavailable")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0, 42000)
	price, err := client.LastPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("LastPrice should fall back, got error: %v", err)
	}
	if price != 42000 {
		t.Errorf("price = %v, want fallback 42000", price)
	}
}

func TestVolatility(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/public/time":
			serveTime(w)
		case "/api/v2/market/ticker":
			writeOK(w, map[string]string{"last": "50000"})
		case "/api/v2/market/candles":
			// Window high 51000, low 50000 -> (51000-50000)/50000*100 = 2%.
			writeOK(w, [][]string{
				{"1700000000000", "50100", "50500", "50000", "50400", "10"},
				{"1700000060000", "50400", "51000", "50200", "50900", "12"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0, 0)
	vol, err := client.Volatility(context.Background(), "BTCUSDT", 10, "1m")
	if err != nil {
		t.Fatalf("Volatility failed: %v", err)
	}
	if vol < 1.99 || vol > 2.01 {
		t.Errorf("Volatility = %v, want 2", vol)
	}
}

func TestSignedRequestHeaders(t *testing.T) {
	var gotHeaders http.Header
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/public/time" {
			serveTime(w)
			return
		}
		gotHeaders = r.Header.Clone()
		gotPath = r.URL.RequestURI()
		writeOK(w, map[string]string{"available": "1"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0, 0)
	if _, err := client.Balance(context.Background(), "USDT"); err != nil {
		t.Fatalf("Balance failed: %v", err)
	}

	if got := gotHeaders.Get(headerKey); got != "test-key" {
		t.Errorf("%s = %q, want test-key", headerKey, got)
	}
	if got := gotHeaders.Get(headerPassphrase); got != "test-pass" {
		t.Errorf("%s = %q, want test-pass", headerPassphrase, got)
	}
	ts := gotHeaders.Get(headerTimestamp)
	if ts != "1700000000000" {
		t.Errorf("%s = %q, want server time", headerTimestamp, ts)
	}
	signer, _ := NewSigner("test-secret")
	want := signer.Sign(ts, "GET", gotPath, "")
	if got := gotHeaders.Get(headerSign); got != want {
		t.Errorf("%s = %q, want %q", headerSign, got, want)
	}
}

func TestPlaceOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/public/time":
			serveTime(w)
		case "/api/v2/trade/orders":
			var req orderRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("failed to decode order request: %v", err)
			}
			if req.Size != "0.0004" {
				t.Errorf("size = %q, want 0.0004", req.Size)
			}
			if !req.ReduceOnly {
				t.Error("reduceOnly should be true")
			}
			writeOK(w, map[string]string{"orderId": "ord-123"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0, 0)
	placed, err := client.PlaceOrder(context.Background(), &models.SizedOrder{
		Pair:         "BTCUSDT",
		Side:         models.OrderSideSell,
		Type:         models.OrderTypeTrigger,
		Size:         0.0004,
		TriggerPrice: 50500,
		ReduceOnly:   true,
		ClientOID:    "client-1",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if placed.OrderID != "ord-123" {
		t.Errorf("OrderID = %q, want ord-123", placed.OrderID)
	}
	if placed.Status != models.OrderStatusPlaced {
		t.Errorf("Status = %q, want placed", placed.Status)
	}
}

func TestPlaceOrderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/public/time" {
			serveTime(w)
			return
		}
		writeRejection(w, "40001", "insufficient margin")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0, 0)
	_, err := client.PlaceOrder(context.Background(), &models.SizedOrder{
		Pair: "BTCUSDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Size: 1,
	})
	rejected, ok := err.(*RejectedError)
	if !ok {
		t.Fatalf("expected *RejectedError, got %T: %v", err, err)
	}
	if rejected.Code != "40001" || rejected.Message != "insufficient margin" {
		t.Errorf("rejection = %+v, want code 40001 / insufficient margin", rejected)
	}
}

func TestPreviewOrderDoesNotSubmit(t *testing.T) {
	orderCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/public/time" {
			serveTime(w)
			return
		}
		orderCalls++
		writeOK(w, map[string]string{"orderId": "should-not-happen"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0, 0)
	preview, err := client.PreviewOrder(context.Background(), &models.SizedOrder{
		Pair: "BTCUSDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Size: 0.0004, ClientOID: "client-1",
	})
	if err != nil {
		t.Fatalf("PreviewOrder failed: %v", err)
	}
	if orderCalls != 0 {
		t.Errorf("PreviewOrder hit the order endpoint %d times", orderCalls)
	}
	if preview.Method != "POST" || preview.Path != "/api/v2/trade/orders" {
		t.Errorf("preview request = %s %s", preview.Method, preview.Path)
	}
	for _, h := range []string{headerKey, headerSign, headerTimestamp, headerPassphrase} {
		if preview.Headers[h] == "" {
			t.Errorf("preview missing header %s", h)
		}
	}
	signer, _ := NewSigner("test-secret")
	want := signer.Sign(preview.Headers[headerTimestamp], "POST", preview.Path, preview.Body)
	if preview.Headers[headerSign] != want {
		t.Errorf("preview signature mismatch")
	}
}
