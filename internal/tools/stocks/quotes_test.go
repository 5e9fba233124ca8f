package stocks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pitchbook/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		Timeout:           2 * time.Second,
		RequestsPerMinute: 600,
	})
}

func quoteHandler(t *testing.T, known map[string]Quote) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		q, ok := known[r.URL.Query().Get("symbol")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(q))
	}
}

func TestGetQuote(t *testing.T) {
	c := newTestClient(t, quoteHandler(t, map[string]Quote{
		"BHARTIARTL": {
			Symbol:  "BHARTIARTL",
			Name:    "Bharti Airtel",
			Price:   decimal.RequireFromString("1542.30"),
			PERatio: decimal.RequireFromString("71.2"),
			Volume:  284_000,
		},
	}))

	q, err := c.GetQuote(context.Background(), "BHARTIARTL")
	require.NoError(t, err)
	assert.Equal(t, "Bharti Airtel", q.Name)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("1542.30")))
}

func TestGetQuote_Unknown(t *testing.T) {
	c := newTestClient(t, quoteHandler(t, nil))

	_, err := c.GetQuote(context.Background(), "GHOST")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestGetQuotes_SkipsUnknownSymbols(t *testing.T) {
	c := newTestClient(t, quoteHandler(t, map[string]Quote{
		"TATACOMM": {Symbol: "TATACOMM", Name: "Tata Communications"},
	}))

	quotes, err := c.GetQuotes(context.Background(), []string{"TATACOMM", "GHOST"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "TATACOMM", quotes[0].Symbol)
}

func TestGetQuotes_AllUnknown(t *testing.T) {
	c := newTestClient(t, quoteHandler(t, nil))

	_, err := c.GetQuotes(context.Background(), []string{"GHOST", "PHANTOM"})
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestNewTool_FormatsQuotes(t *testing.T) {
	c := newTestClient(t, quoteHandler(t, map[string]Quote{
		"KAYNES": {
			Symbol: "KAYNES",
			Name:   "Kaynes Technology",
			Price:  decimal.RequireFromString("4120.55"),
		},
	}))

	out, err := NewTool(c).Execute(context.Background(), map[string]interface{}{"symbols": "kaynes"})
	require.NoError(t, err)
	assert.Contains(t, out, "Kaynes Technology (KAYNES)")
	assert.Contains(t, out, "4120.55")
}

func TestNewTool_MissingSymbols(t *testing.T) {
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {})

	_, err := NewTool(c).Execute(context.Background(), map[string]interface{}{})
	require.ErrorIs(t, err, errors.ErrInvalidInput)
}
