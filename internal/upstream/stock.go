package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

const yahooChartBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Quote is the current price for a symbol.
type Quote struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// InstrumentInfo is static metadata for a symbol.
type InstrumentInfo struct {
	Symbol         string `json:"symbol"`
	LongName       string `json:"longName"`
	Currency       string `json:"currency"`
	ExchangeName   string `json:"exchangeName"`
	InstrumentType string `json:"instrumentType"`
}

// HistoricalPrice is the open price found for a requested date. ActualDate
// may precede RequestedDate when markets were closed on the requested day.
type HistoricalPrice struct {
	Symbol        string  `json:"symbol"`
	RequestedDate string  `json:"requestedDate"`
	ActualDate    string  `json:"actualDate"`
	OpenPrice     float64 `json:"openPrice"`
	Currency      string  `json:"currency"`
}

// chartResponse mirrors the subset of the Yahoo chart payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				Currency           string  `json:"currency"`
				LongName           string  `json:"longName"`
				ShortName          string  `json:"shortName"`
				ExchangeName       string  `json:"exchangeName"`
				InstrumentType     string  `json:"instrumentType"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Open []*float64 `json:"open"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// StockClient fetches quotes from the Yahoo Finance chart API.
type StockClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewStockClient creates a stock client.
func NewStockClient(httpClient *http.Client) *StockClient {
	return &StockClient{baseURL: yahooChartBaseURL, httpClient: httpClient}
}

// WithBaseURL overrides the provider endpoint, for tests.
func (c *StockClient) WithBaseURL(base string) *StockClient {
	c.baseURL = base
	return c
}

// Price returns the current market price for symbol.
func (c *StockClient) Price(ctx context.Context, symbol string) (*Quote, error) {
	chart, err := c.fetchChart(ctx, symbol, url.Values{"interval": {"1d"}, "range": {"1d"}})
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result
	if len(result) == 0 || result[0].Meta.RegularMarketPrice == 0 {
		return nil, fmt.Errorf("price for %s: %w", symbol, ErrNotFound)
	}

	return &Quote{
		Symbol:   symbol,
		Price:    result[0].Meta.RegularMarketPrice,
		Currency: currencyOrDefault(result[0].Meta.Currency),
	}, nil
}

// Info returns instrument metadata for symbol.
func (c *StockClient) Info(ctx context.Context, symbol string) (*InstrumentInfo, error) {
	chart, err := c.fetchChart(ctx, symbol, url.Values{"interval": {"1d"}, "range": {"1d"}})
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result
	if len(result) == 0 {
		return nil, fmt.Errorf("info for %s: %w", symbol, ErrNotFound)
	}

	meta := result[0].Meta
	longName := meta.LongName
	if longName == "" {
		longName = meta.ShortName
	}
	if longName == "" {
		longName = symbol
	}
	instrumentType := meta.InstrumentType
	if instrumentType == "" {
		instrumentType = "EQUITY"
	}

	return &InstrumentInfo{
		Symbol:         symbol,
		LongName:       longName,
		Currency:       currencyOrDefault(meta.Currency),
		ExchangeName:   meta.ExchangeName,
		InstrumentType: instrumentType,
	}, nil
}

// HistoryOpen returns the open price for symbol on date, walking back up to
// seven calendar days to skip weekends and holidays. The first day with
// data wins; failed days are skipped, not retried.
func (c *StockClient) HistoryOpen(ctx context.Context, symbol string, date time.Time) (*HistoricalPrice, error) {
	for daysBack := 0; daysBack < 7; daysBack++ {
		checkDate := date.AddDate(0, 0, -daysBack)
		period1 := checkDate.Unix()
		period2 := period1 + 86400

		chart, err := c.fetchChart(ctx, symbol, url.Values{
			"period1":  {strconv.FormatInt(period1, 10)},
			"period2":  {strconv.FormatInt(period2, 10)},
			"interval": {"1d"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		open, currency, ok := firstOpen(chart)
		if !ok {
			continue
		}

		actual := checkDate.Format("2006-01-02")
		if daysBack > 0 {
			zerolog.Ctx(ctx).Debug().
				Str("symbol", symbol).
				Str("requested", date.Format("2006-01-02")).
				Str("actual", actual).
				Msg("requested date had no data, using earlier day")
		}

		return &HistoricalPrice{
			Symbol:        symbol,
			RequestedDate: date.Format("2006-01-02"),
			ActualDate:    actual,
			OpenPrice:     open,
			Currency:      currency,
		}, nil
	}

	return nil, fmt.Errorf("history for %s: %w", symbol, ErrNotFound)
}

func firstOpen(chart *chartResponse) (float64, string, bool) {
	result := chart.Chart.Result
	if len(result) == 0 {
		return 0, "", false
	}
	quotes := result[0].Indicators.Quote
	if len(quotes) == 0 || len(quotes[0].Open) == 0 || quotes[0].Open[0] == nil {
		return 0, "", false
	}
	return *quotes[0].Open[0], currencyOrDefault(result[0].Meta.Currency), true
}

func (c *StockClient) fetchChart(ctx context.Context, symbol string, params url.Values) (*chartResponse, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(symbol) + "?" + params.Encode()

	operation := func() (*chartResponse, error) {
		return c.fetchOnce(ctx, endpoint)
	}

	chart, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		zerolog.Ctx(ctx).Error().Err(err).Str("symbol", symbol).Msg("stock fetch failed")
		return nil, fmt.Errorf("fetch chart for %s: %w", symbol, ErrUnavailable)
	}
	return chart, nil
}

func (c *StockClient) fetchOnce(ctx context.Context, endpoint string) (*chartResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build chart request: %w", err))
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; questdeck/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call stock provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, backoff.Permanent(ErrNotFound)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, backoff.Permanent(fmt.Errorf("stock provider returned HTTP %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stock provider returned HTTP %d", resp.StatusCode)
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode chart response: %w", err))
	}
	return &chart, nil
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return "USD"
	}
	return currency
}
