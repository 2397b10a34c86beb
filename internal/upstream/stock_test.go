package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func chartBody(price float64, currency string) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"regularMarketPrice":%g,"currency":%q,"longName":"Apple Inc.","exchangeName":"NMS","instrumentType":"EQUITY"}}]}}`, price, currency)
}

func TestStockClient_price(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/AAPL", r.URL.Path)
		fmt.Fprint(w, chartBody(187.5, "USD"))
	}))
	defer ts.Close()

	client := NewStockClient(ts.Client()).WithBaseURL(ts.URL)

	quote, err := client.Price(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, &Quote{Symbol: "AAPL", Price: 187.5, Currency: "USD"}, quote)
}

func TestStockClient_priceDefaultsCurrency(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody(10, ""))
	}))
	defer ts.Close()

	client := NewStockClient(ts.Client()).WithBaseURL(ts.URL)

	quote, err := client.Price(context.Background(), "X")
	require.NoError(t, err)
	require.Equal(t, "USD", quote.Currency)
}

func TestStockClient_priceNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[]}}`)
	}))
	defer ts.Close()

	client := NewStockClient(ts.Client()).WithBaseURL(ts.URL)

	_, err := client.Price(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStockClient_upstream404IsNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewStockClient(ts.Client()).WithBaseURL(ts.URL)

	_, err := client.Price(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStockClient_info(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody(187.5, "USD"))
	}))
	defer ts.Close()

	client := NewStockClient(ts.Client()).WithBaseURL(ts.URL)

	info, err := client.Info(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, &InstrumentInfo{
		Symbol:         "AAPL",
		LongName:       "Apple Inc.",
		Currency:       "USD",
		ExchangeName:   "NMS",
		InstrumentType: "EQUITY",
	}, info)
}

func TestStockClient_historyFallsBackAcrossDays(t *testing.T) {
	// No data for the requested Sunday or Saturday; Friday has the open.
	target := time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC) // a Sunday
	friday := target.AddDate(0, 0, -2).Unix()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("period1") == fmt.Sprintf("%d", friday) {
			fmt.Fprint(w, `{"chart":{"result":[{"meta":{"currency":"USD"},"indicators":{"quote":[{"open":[123.45]}]}}]}}`)
			return
		}
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"currency":"USD"},"indicators":{"quote":[{"open":[null]}]}}]}}`)
	}))
	defer ts.Close()

	client := NewStockClient(ts.Client()).WithBaseURL(ts.URL)

	price, err := client.HistoryOpen(context.Background(), "AAPL", target)
	require.NoError(t, err)
	require.Equal(t, "2026-03-08", price.RequestedDate)
	require.Equal(t, "2026-03-06", price.ActualDate)
	require.Equal(t, 123.45, price.OpenPrice)
}

func TestStockClient_historyNotFoundAfterSevenDays(t *testing.T) {
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{"chart":{"result":[]}}`)
	}))
	defer ts.Close()

	client := NewStockClient(ts.Client()).WithBaseURL(ts.URL)

	_, err := client.HistoryOpen(context.Background(), "AAPL", time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 7, requests, "one attempt per fallback day, no retries on clean no-data responses")
}
