package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pitchbook/internal/groupchat"
)

func TestPathID(t *testing.T) {
	id := uuid.New()

	mux := http.NewServeMux()
	var got uuid.UUID
	mux.HandleFunc("GET /x/{id}", func(w http.ResponseWriter, r *http.Request) {
		parsed, ok := pathID(w, r)
		if ok {
			got = parsed
			w.WriteHeader(http.StatusOK)
		}
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, got)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid id", resp.Error)
}

func TestQueryLimit(t *testing.T) {
	cases := []struct {
		url  string
		want int
	}{
		{"/api/workflows", 0},
		{"/api/workflows?limit=5", 5},
		{"/api/workflows?limit=abc", 0},
		{"/api/workflows?limit=-3", -3},
	}

	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, tc.url, nil)
		assert.Equal(t, tc.want, queryLimit(r), tc.url)
	}
}

func TestWriteSSE(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSE(rec, groupchat.Event{
		Type:      groupchat.EventAgentDone,
		Agent:     "Validator",
		Message:   "done",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "data: "), body)
	require.True(t, strings.HasSuffix(body, "\n\n"), body)

	var e groupchat.Event
	payload := strings.TrimSuffix(strings.TrimPrefix(body, "data: "), "\n\n")
	require.NoError(t, json.Unmarshal([]byte(payload), &e))
	assert.Equal(t, groupchat.EventAgentDone, e.Type)
	assert.Equal(t, "Validator", e.Agent)
}
