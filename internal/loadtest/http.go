package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pepai/pkg/logger"
)

const (
	idempotencyHeader = "Idempotency-Key"
	progressInterval  = time.Second
)

type result int

const (
	accepted result = iota
	duplicate
	throttled
	failed
)

// client wraps http.Client with the run's credentials.
type client struct {
	http    *http.Client
	baseURL string
	token   string
}

func newClient(cfg *Config) *client {
	return &client{http: &http.Client{Timeout: cfg.Timeout}, baseURL: cfg.BaseURL, token: cfg.Token}
}

func (c *client) do(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

// historyCount returns how many drills the user has saved.
func (c *client) historyCount(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/history", nil, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("list history: status %d", resp.StatusCode)
	}
	var list struct {
		Drills []json.RawMessage `json:"drills"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return 0, fmt.Errorf("decode history: %w", err)
	}
	return len(list.Drills), nil
}

// submit sends one save and classifies the answer.
func (c *client) submit(ctx context.Context, s Save) result {
	resp, err := c.do(ctx, http.MethodPost, "/api/history", s.Body, http.Header{idempotencyHeader: {s.Key}})
	if err != nil {
		return failed
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return accepted
	case http.StatusOK:
		return duplicate
	case http.StatusTooManyRequests:
		return throttled
	default:
		return failed
	}
}

// submitSaves sends saves over cfg.Workers senders.
func submitSaves(ctx context.Context, cfg *Config, saves []Save, stats *Stats) {
	log := logger.Get()
	log.Info(ctx, "submitting history saves", logger.Int("saves", len(saves)), logger.Int("workers", cfg.Workers))

	c := newClient(cfg)
	var (
		last     atomic.Int64
		wg       sync.WaitGroup
		saveChan = make(chan Save, cfg.Workers*2)
	)
	last.Store(time.Now().UnixNano())

	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range saveChan {
				if ctx.Err() != nil {
					continue
				}
				res := c.submit(ctx, s)
				atomic.AddInt64(&stats.Submitted, 1)
				switch res {
				case accepted:
					atomic.AddInt64(&stats.Accepted, 1)
				case duplicate:
					atomic.AddInt64(&stats.Duplicate, 1)
				case throttled:
					atomic.AddInt64(&stats.Throttled, 1)
				default:
					atomic.AddInt64(&stats.Failed, 1)
				}

				now := time.Now().UnixNano()
				if prev := last.Load(); now-prev >= int64(progressInterval) && last.CompareAndSwap(prev, now) {
					log.Info(ctx, "progress",
						logger.Any("submitted", atomic.LoadInt64(&stats.Submitted)),
						logger.Int("total", len(saves)),
						logger.Any("accepted", atomic.LoadInt64(&stats.Accepted)),
						logger.Any("throttled", atomic.LoadInt64(&stats.Throttled)))
				}
			}
		}()
	}

send:
	for _, s := range saves {
		select {
		case <-ctx.Done():
			break send
		case saveChan <- s:
		}
	}
	close(saveChan)
	wg.Wait()

	log.Info(ctx, "submission completed",
		logger.Any("accepted", stats.Accepted),
		logger.Any("duplicate", stats.Duplicate),
		logger.Any("throttled", stats.Throttled),
		logger.Any("failed", stats.Failed))
}
