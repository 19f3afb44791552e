package tableapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/galebot/internal/adapters/tableapi"
	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ports"
)

func newTestClient(srv *httptest.Server) *tableapi.Client {
	return tableapi.NewClient(srv.URL, srv.URL, "secret", tableapi.WithRetryWait(time.Millisecond))
}

func TestSpinsAfter_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/spins", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("after"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"spins":[
			{"spin":10,"value":3,"color":"red"},
			{"spin":11,"value":0,"color":"green","at":"2026-03-01T12:00:00Z"},
			{"spin":12,"value":4,"color":"red"},
			{"spin":13,"value":4,"color":"black"}
		]}`))
	}))
	defer srv.Close()

	spins, err := newTestClient(srv).SpinsAfter(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, spins, 2, "spin 10 is not after 10 and spin 12 has the wrong color")

	assert.Equal(t, int64(11), spins[0].SpinNumber)
	assert.True(t, spins[0].IsZero())
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), spins[0].ObservedAt)
	assert.Equal(t, int64(13), spins[1].SpinNumber)
	assert.Equal(t, domain.ColorBlack, spins[1].Color)
}

func TestSpinsAfter_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"spins":[{"spin":1,"value":5,"color":"red"}]}`))
	}))
	defer srv.Close()

	spins, err := newTestClient(srv).SpinsAfter(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, spins, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSpinsAfter_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).SpinsAfter(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client error 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPlaceBet_SendsIdempotencyKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bets", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "bet-1", r.Header.Get("Idempotency-Key"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bet-1", body["bet_id"])
		assert.Equal(t, "odd", body["bet_type"])
		assert.Equal(t, "12.50", body["amount"])
		assert.Equal(t, float64(77), body["spin"])

		w.Write([]byte(`{"ref":"T-991","accepted_at":"2026-03-01T12:00:01Z"}`))
	}))
	defer srv.Close()

	ack, err := newTestClient(srv).PlaceBet(context.Background(), ports.PlaceRequest{
		BetID: "bet-1", Type: domain.BetOdd, Amount: decimal.RequireFromString("12.5"), SpinFor: 77,
	})
	require.NoError(t, err)
	assert.Equal(t, "T-991", ack.Ref)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPlaceBet_MissingRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).PlaceBet(context.Background(), ports.PlaceRequest{BetID: "b", Type: domain.BetRed, Amount: decimal.NewFromInt(1)})
	assert.Error(t, err)
}

func TestClient_UnconfiguredSide(t *testing.T) {
	c := tableapi.NewClient("", "", "")
	_, err := c.SpinsAfter(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = c.PlaceBet(context.Background(), ports.PlaceRequest{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestClient_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := newTestClient(srv).PlaceBet(ctx, ports.PlaceRequest{BetID: "b", Type: domain.BetRed, Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
