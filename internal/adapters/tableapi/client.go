package tableapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ports"
)

const (
	// El detector se consulta como mucho unas pocas veces por segundo; las apuestas son raras.
	detectorRatePerSec = 5
	actuatorRatePerSec = 2

	maxRetries    = 3
	baseRetryWait = 200 * time.Millisecond
)

// Client habla con el servicio de la mesa: el detector que lee las tiradas de
// la ruleta y el actuador que coloca las fichas. Ambos tienen rate limit y
// reintentos con backoff exponencial.
type Client struct {
	http            *http.Client
	detectorBase    string
	actuatorBase    string
	apiKey          string
	detectorLimiter *rate.Limiter
	actuatorLimiter *rate.Limiter
	retryWait       time.Duration
}

// Option personaliza un Client.
type Option func(*Client)

// WithHTTPClient reemplaza el cliente HTTP por defecto.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetryWait fija el backoff base entre reintentos.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.retryWait = d }
}

// NewClient crea un Client con los base URLs dados. Si una base está vacía ese
// lado queda deshabilitado y sus llamadas fallan con error de configuración.
func NewClient(detectorBase, actuatorBase, apiKey string, opts ...Option) *Client {
	c := &Client{
		http:            &http.Client{Timeout: 10 * time.Second},
		detectorBase:    detectorBase,
		actuatorBase:    actuatorBase,
		apiKey:          apiKey,
		detectorLimiter: rate.NewLimiter(detectorRatePerSec, 2),
		actuatorLimiter: rate.NewLimiter(actuatorRatePerSec, 1),
		retryWait:       baseRetryWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SpinsAfter devuelve las tiradas con número mayor que after, las más antiguas
// primero. Las lecturas que no validan se descartan y se loguean.
func (c *Client) SpinsAfter(ctx context.Context, after int64) ([]domain.Outcome, error) {
	if c.detectorBase == "" {
		return nil, domain.Errorf(domain.KindConfiguration, "tableapi.SpinsAfter", "detector url not set")
	}
	u := c.detectorBase + "/spins?after=" + url.QueryEscape(strconv.FormatInt(after, 10))

	var resp spinsResponse
	if err := c.get(ctx, c.detectorLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("tableapi.SpinsAfter: %w", err)
	}

	out := make([]domain.Outcome, 0, len(resp.Spins))
	for _, s := range resp.Spins {
		if s.Spin <= after {
			continue
		}
		o, err := s.toOutcome()
		if err != nil {
			slog.Warn("tableapi: invalid spin reading dropped", "spin", s.Spin, "err", err)
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// PlaceBet envía una apuesta al actuador. El ID de la apuesta viaja como
// idempotency key para que un POST reintentado no coloque las fichas dos veces.
func (c *Client) PlaceBet(ctx context.Context, req ports.PlaceRequest) (ports.PlaceAck, error) {
	if c.actuatorBase == "" {
		return ports.PlaceAck{}, domain.Errorf(domain.KindConfiguration, "tableapi.PlaceBet", "actuator url not set")
	}
	var resp betResponse
	if err := c.post(ctx, c.actuatorLimiter, c.actuatorBase+"/bets", req.BetID, newBetRequest(req), &resp); err != nil {
		return ports.PlaceAck{}, fmt.Errorf("tableapi.PlaceBet: %s: %w", req.BetID, err)
	}
	ack, err := resp.toAck()
	if err != nil {
		return ports.PlaceAck{}, fmt.Errorf("tableapi.PlaceBet: %s: %w", req.BetID, err)
	}
	return ack, nil
}

// get hace un GET con rate limit y reintentos.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		c.authorize(req)
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON con rate limit y reintentos.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url, idempotencyKey string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Idempotency-Key", idempotencyKey)
		c.authorize(req)
		return c.http.Do(req)
	}, out)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// doWithRetry ejecuta fn con backoff exponencial. Se reintentan 429 y 5xx;
// el resto de 4xx se devuelve al momento.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("tableapi: retrying", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
