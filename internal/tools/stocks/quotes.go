package stocks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"pitchbook/internal/tools"
	"pitchbook/pkg/errors"
	"pitchbook/pkg/logger"
)

// Quote is one company's market snapshot. Monetary fields are decimals to
// avoid float drift when participants compute ratios from them.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	MarketCap     decimal.Decimal `json:"market_cap"`
	PERatio       decimal.Decimal `json:"pe_ratio"`
	High52W       decimal.Decimal `json:"high_52w"`
	Low52W        decimal.Decimal `json:"low_52w"`
	Volume        int64           `json:"volume"`
}

// Client fetches quotes from a JSON market-data API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// Config configures the quote client.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 2),
		log:     logger.Get().With("component", "stock_quotes"),
	}
}

// GetQuote fetches one symbol's snapshot.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/quote?symbol=%s", c.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build quote request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch quote for %s", symbol)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errors.Wrapf(errors.ErrNotFound, "no quote for symbol %q", symbol)
	default:
		return nil, errors.Wrapf(errors.ErrToolFailed, "quote API returned %d for %s", resp.StatusCode, symbol)
	}

	var q Quote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return nil, errors.Wrapf(err, "decode quote for %s", symbol)
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return &q, nil
}

// GetQuotes fetches several symbols, skipping unknown ones. It fails only
// when no symbol resolves.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]Quote, error) {
	quotes := make([]Quote, 0, len(symbols))
	var lastErr error

	for _, symbol := range symbols {
		q, err := c.GetQuote(ctx, symbol)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				c.log.Warnf("Skipping unknown symbol %q", symbol)
				lastErr = err
				continue
			}
			return nil, err
		}
		quotes = append(quotes, *q)
	}

	if len(quotes) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, errors.Wrap(errors.ErrInvalidInput, "no symbols given")
	}
	return quotes, nil
}

// FormatQuotes renders quotes as the text table participants consume.
func FormatQuotes(quotes []Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market data for %d companies:\n", len(quotes))
	for _, q := range quotes {
		fmt.Fprintf(&b, "\n%s (%s)\n", q.Name, q.Symbol)
		fmt.Fprintf(&b, "  Price: %s (%s, %s%%)\n", q.Price, q.Change, q.ChangePercent)
		fmt.Fprintf(&b, "  Market cap: %s | P/E: %s\n", q.MarketCap, q.PERatio)
		fmt.Fprintf(&b, "  52w range: %s - %s | Volume: %d\n", q.Low52W, q.High52W, q.Volume)
	}
	return b.String()
}

// NewTool exposes the quote client as a participant tool.
func NewTool(c *Client) tools.Tool {
	params := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"symbols": map[string]interface{}{
				"type":        "string",
				"description": "Comma-separated ticker symbols, e.g. \"BHARTIARTL,TATACOMM\".",
			},
		},
		"required": []string{"symbols"},
	}

	return tools.New(
		"get_stock_data",
		"Fetch current market data (price, market cap, P/E, 52-week range, volume) for one or more ticker symbols.",
		params,
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			raw, ok := tools.StringArg(args, "symbols")
			if !ok || raw == "" {
				return "", errors.Wrap(errors.ErrInvalidInput, "symbols is required")
			}

			var symbols []string
			for _, s := range strings.Split(raw, ",") {
				if s = strings.TrimSpace(s); s != "" {
					symbols = append(symbols, strings.ToUpper(s))
				}
			}

			quotes, err := c.GetQuotes(ctx, symbols)
			if errors.Is(err, errors.ErrNotFound) {
				return "No market data found for the requested symbols.", nil
			}
			if err != nil {
				return "", err
			}
			return FormatQuotes(quotes), nil
		},
	)
}
