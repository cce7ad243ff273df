// Package generate drives the generative model: streamed generation and
// refinement with retry on overload, and the one-shot drill request.
package generate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/pkg/logger"
	"github.com/okian/pepai/pkg/metrics"
)

const (
	defaultMaxAttempts = 4
	defaultBackoffBase = time.Second
	defaultJitter      = time.Second
	eventBuffer        = 8
)

// Requester runs model requests.
type Requester struct {
	model       Model
	maxAttempts int
	base        time.Duration
	jitter      time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	random      func() float64
	logger      logger.Logger
}

// New creates a Requester over model. A nil model makes every call fail with
// ErrNotConfigured.
func New(model Model, opts ...Option) *Requester {
	r := &Requester{
		model:       model,
		maxAttempts: defaultMaxAttempts,
		base:        defaultBackoffBase,
		jitter:      defaultJitter,
		sleep:       sleepCtx,
		random:      rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Named("generate")
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}
	return r
}

// Configured reports whether a model is present.
func (r *Requester) Configured() bool { return r.model != nil }

// Generate streams a new drill for a coach's request.
func (r *Requester) Generate(ctx context.Context, request string) <-chan Event {
	return r.Stream(ctx, "generate", GeneratePrompt(request))
}

// Refine streams an updated version of current.
func (r *Requester) Refine(ctx context.Context, current drill.Drill, instruction string) <-chan Event {
	p, err := RefinePrompt(current, instruction)
	if err != nil {
		return failed(err)
	}
	return r.Stream(ctx, "refine", p)
}

// Stream runs p with retries and reports progress on the returned channel,
// which is closed after a terminal event. If ctx is cancelled the channel
// may close without one.
func (r *Requester) Stream(ctx context.Context, kind string, p Prompt) <-chan Event {
	if r.model == nil {
		return failed(ErrNotConfigured)
	}
	out := make(chan Event, eventBuffer)
	go func() {
		defer close(out)
		r.run(ctx, kind, p, out)
	}()
	return out
}

func (r *Requester) run(ctx context.Context, kind string, p Prompt, out chan<- Event) {
	send := func(e Event) bool {
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}
	start := time.Now()

	for attempt := 1; ; attempt++ {
		metrics.RecordGenerationAttempt()
		text, err := r.attempt(ctx, p, attempt, send)
		if err == nil {
			metrics.RecordGenerationLatency(kind, float64(time.Since(start).Milliseconds()))
			metrics.RecordDrillGenerated(kind)
			send(Event{Kind: Done, Text: text, Attempt: attempt})
			return
		}
		if errors.Is(err, errStopped) {
			return
		}

		if !IsOverloaded(err) {
			r.logger.Error(ctx, "generation failed",
				logger.String("kind", kind),
				logger.Int("attempt", attempt),
				logger.Error(err))
			metrics.RecordErrorByComponent("generate", "model_error")
			send(Event{Kind: Failed, Err: err, Attempt: attempt})
			return
		}

		if attempt >= r.maxAttempts {
			r.logger.Warn(ctx, "model overwhelmed, giving up",
				logger.String("kind", kind),
				logger.Int("attempts", attempt))
			metrics.RecordGenerationHighDemand()
			send(Event{Kind: Failed, Err: fmt.Errorf("%w (%d attempts): %v", ErrHighDemand, attempt, err), Attempt: attempt})
			return
		}

		delay := r.backoff(attempt)
		r.logger.Info(ctx, "model overwhelmed, retrying",
			logger.String("kind", kind),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay))
		metrics.RecordGenerationRetry()
		if !send(Event{Kind: Retrying, Attempt: attempt, Delay: delay}) {
			return
		}
		if err := r.sleep(ctx, delay); err != nil {
			return
		}
	}
}

var errStopped = errors.New("consumer gone")

// attempt runs one request and returns the accumulated text.
func (r *Requester) attempt(ctx context.Context, p Prompt, n int, send func(Event) bool) (string, error) {
	var sb strings.Builder
	for chunk, err := range r.model.Stream(ctx, p) {
		if err != nil {
			return "", err
		}
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if !send(Event{Kind: Progress, Text: sb.String(), Attempt: n}) {
			return "", errStopped
		}
	}
	if err := ctx.Err(); err != nil {
		return "", errStopped
	}
	return sb.String(), nil
}

// backoff is base·2^(attempt-1) plus up to one jitter.
func (r *Requester) backoff(attempt int) time.Duration {
	d := r.base << (attempt - 1)
	return d + time.Duration(r.random()*float64(r.jitter))
}

// Complete runs the one-shot drill request and parses the response.
func (r *Requester) Complete(ctx context.Context, request string) (drill.Response, error) {
	if r.model == nil {
		return drill.Response{}, ErrNotConfigured
	}
	start := time.Now()
	metrics.RecordGenerationAttempt()
	text, err := r.model.Complete(ctx, OneShotPrompt(request))
	if err != nil {
		return drill.Response{}, err
	}
	if strings.TrimSpace(text) == "" {
		return drill.Response{}, drill.ErrEmptyResponse
	}
	resp, err := drill.ParseResponse(text, "")
	if err != nil {
		metrics.RecordMalformedResponse()
		return drill.Response{}, err
	}
	metrics.RecordGenerationLatency("oneshot", float64(time.Since(start).Milliseconds()))
	metrics.RecordDrillGenerated("oneshot")
	return resp, nil
}

// Collect drains events and normalizes the final text. existingID is kept
// as the drill id (refinement); pass "" for new drills. onEvent, if not nil,
// sees every event first.
func Collect(ctx context.Context, events <-chan Event, existingID string, onEvent func(Event)) (drill.Drill, error) {
	for {
		if err := ctx.Err(); err != nil {
			return drill.Drill{}, err
		}
		select {
		case <-ctx.Done():
			return drill.Drill{}, ctx.Err()
		case e, ok := <-events:
			if !ok {
				if err := ctx.Err(); err != nil {
					return drill.Drill{}, err
				}
				return drill.Drill{}, errors.New("generation stream ended without a result")
			}
			if onEvent != nil {
				onEvent(e)
			}
			switch e.Kind {
			case Done:
				d, err := drill.Normalize(e.Text, existingID)
				if err != nil {
					metrics.RecordMalformedResponse()
				}
				return d, err
			case Failed:
				return drill.Drill{}, e.Err
			}
		}
	}
}

func failed(err error) <-chan Event {
	out := make(chan Event, 1)
	out <- Event{Kind: Failed, Err: err}
	close(out)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
