// Package service assembles the drill service from configuration: the
// document store, drafts, billing, generation, voice and the asynchronous
// history pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/api/option"

	"github.com/okian/pepai/internal/adapters/drafts"
	"github.com/okian/pepai/internal/adapters/gemini"
	"github.com/okian/pepai/internal/adapters/http/api"
	"github.com/okian/pepai/internal/adapters/http/auth"
	"github.com/okian/pepai/internal/adapters/mq/queue"
	"github.com/okian/pepai/internal/adapters/mq/worker"
	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/internal/billing"
	"github.com/okian/pepai/internal/config"
	"github.com/okian/pepai/internal/domain/dedupe"
	"github.com/okian/pepai/internal/generate"
	"github.com/okian/pepai/internal/voice"
	"github.com/okian/pepai/pkg/logger"
	"github.com/okian/pepai/pkg/metrics"
)

// ErrNotStarted is returned by accessors used before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns every long-lived component.
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config

	store     repository.Store
	ownsStore bool
	drafts    *drafts.Store
	billing   *billing.Service
	requester *generate.Requester
	model     generate.Model
	dialer    voice.Dialer
	bridge    *voice.Bridge
	verifier  *auth.Verifier

	keys   *dedupe.Keys
	queue  *queue.InMemoryQueue
	pool   *worker.Pool
	cancel context.CancelFunc

	started bool
	logger  logger.Logger
}

// New creates a Service for cfg. Nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts the history workers.
func (s *Service) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting drill service...", logger.String("store", cfg.StoreDriver))

	if s.store == nil {
		if s.store, err = OpenStore(ctx, cfg, s.logger); err != nil {
			return err
		}
		s.ownsStore = true
	}
	defer func() {
		if err != nil && s.ownsStore {
			_ = s.store.Close()
			s.store = nil
		}
	}()

	if s.drafts, err = drafts.Open(ctx, cfg.DraftsDir, cfg.DraftsPassphrase, drafts.WithLogger(s.logger.Named("drafts"))); err != nil {
		return fmt.Errorf("open drafts: %w", err)
	}

	s.billing = NewBilling(cfg, s.store, s.logger)

	if err := s.openModels(ctx); err != nil {
		return err
	}

	if cfg.AuthEnabled {
		keys := auth.NewJWKS(cfg.JWKSURL, auth.WithLogger(s.logger.Named("jwks")))
		s.verifier = auth.NewVerifier(keys, cfg.FirebaseProject)
	} else if cfg.MockUID != "" {
		s.logger.Warn(ctx, "auth disabled, every request runs as the mock user", logger.String("uid", cfg.MockUID))
	}

	s.keys = dedupe.New(dedupe.WithMaxSize(cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.HistoryQueueSize))
	s.pool = worker.NewPool(cfg.WorkerCount, s.queue, s.store, s.keys, worker.WithLogger(s.logger.Named("history")))
	// Workers outlive the caller's ctx; Stop ends them after the queue drains.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "drill service started",
		logger.Int("workers", cfg.WorkerCount),
		logger.Int("queueSize", cfg.HistoryQueueSize),
		logger.Int("dedupeSize", cfg.DedupeSize),
		logger.Bool("billing", cfg.BillingEnabled),
		logger.Bool("generation", s.requester.Configured()),
		logger.Bool("voice", s.bridge != nil),
	)
	return nil
}

// openModels connects the generation model and the live dialer. A missing
// API key leaves both unconfigured.
func (s *Service) openModels(ctx context.Context) error {
	cfg := s.cfg
	model, dialer := s.model, s.dialer
	if model == nil || dialer == nil {
		client, err := gemini.New(ctx, cfg.GenAIAPIKey,
			gemini.WithStreamModel(cfg.GenerationModel),
			gemini.WithOneShotModel(cfg.DrillsModel),
			gemini.WithLiveModel(cfg.LiveModel),
			gemini.WithVoice(cfg.VoiceName),
			gemini.WithLogger(s.logger.Named("gemini")),
		)
		switch {
		case errors.Is(err, generate.ErrNotConfigured):
			s.logger.Warn(ctx, "no Gemini API key, generation and voice are disabled")
		case err != nil:
			return err
		default:
			if model == nil {
				model = client
			}
			if dialer == nil {
				dialer = client
			}
		}
	}

	s.requester = generate.New(model,
		generate.WithMaxAttempts(cfg.MaxAttempts),
		generate.WithBackoff(ms(cfg.BackoffBaseMS), ms(cfg.BackoffJitterMS)),
		generate.WithLogger(s.logger.Named("generate")),
	)
	if dialer != nil {
		s.bridge = voice.NewBridge(dialer, voice.WithLogger(s.logger.Named("voice")))
	}
	return nil
}

// OpenStore opens the document store selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreFirestore:
		var copts []option.ClientOption
		if cfg.FirestoreCredentials != "" {
			copts = append(copts, option.WithCredentialsFile(cfg.FirestoreCredentials))
		}
		st, err := repository.OpenFirestore(ctx, cfg.FirestoreProject, copts, repository.WithLogger(log.Named("firestore")))
		if err != nil {
			return nil, fmt.Errorf("open firestore: %w", err)
		}
		return st, nil
	default:
		st, err := repository.OpenSQLite(ctx, cfg.SQLitePath, repository.WithLogger(log.Named("sqlite")))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return st, nil
	}
}

// NewBilling builds the billing service with the configured prices.
func NewBilling(cfg *config.Config, st billing.Store, log logger.Logger) *billing.Service {
	return billing.New(st,
		billing.WithEnforcement(cfg.BillingEnabled),
		billing.WithCost(repository.Credits, cfg.CreditCost),
		billing.WithCost(repository.PepPoints, cfg.PepPointCost),
		billing.WithDefaultCredits(cfg.DefaultCredits),
		billing.WithReturnURL(cfg.PublicURL),
		billing.WithCheckoutTimeout(ms(cfg.CheckoutTimeoutMS)),
		billing.WithLogger(log.Named("billing")),
	)
}

// Stop drains the history queue and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping drill service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	s.started = false
	s.logger.Info(ctx, "drill service stopped")
	return errors.Join(errs...)
}

// Dependencies returns the collaborators the HTTP API needs.
func (s *Service) Dependencies() api.Dependencies {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deps := api.Dependencies{
		Generator: s.requester,
		History:   s.store,
		Saves:     s,
		Shares:    s.store,
		Drafts:    s.drafts,
		Billing:   s.billing,
		Stats:     s,
	}
	if s.bridge != nil {
		deps.Voice = s.bridge
	}
	return deps
}

// Verifier returns the token verifier, or nil when auth is disabled.
func (s *Service) Verifier() *auth.Verifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifier
}

// Store returns the open document store.
func (s *Service) Store() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// Billing returns the billing service.
func (s *Service) Billing() (*billing.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.billing, nil
}

// Generator returns the generation requester.
func (s *Service) Generator() (*generate.Requester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.requester, nil
}

// SeenAndRecord reports whether key was already accepted, recording it if not.
func (s *Service) SeenAndRecord(ctx context.Context, key string) bool {
	return s.keys.SeenAndRecord(ctx, key)
}

// Unrecord forgets key so a retry is accepted.
func (s *Service) Unrecord(ctx context.Context, key string) {
	s.keys.Unrecord(ctx, key)
}

// Size returns the number of remembered idempotency keys.
func (s *Service) Size() int64 {
	if s.keys == nil {
		return 0
	}
	return s.keys.Size()
}

// Enqueue hands a history save to the workers. False means the queue is full.
func (s *Service) Enqueue(ctx context.Context, j queue.Job) bool {
	ok := s.queue.Enqueue(ctx, j)
	if !ok {
		s.logger.Warn(ctx, "history queue rejected save",
			logger.String("key", j.Key), logger.String("uid", j.UID), logger.Int("queueLength", s.queue.Len(ctx)))
	}
	return ok
}

// GetStats returns service statistics for /stats.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":         s.started,
		"store":           s.cfg.StoreDriver,
		"billingEnforced": s.cfg.BillingEnabled,
		"authEnabled":     s.cfg.AuthEnabled,
	}
	if !s.started {
		return stats
	}

	ps := s.pool.Stats()
	queueLen := s.queue.Len(ctx)
	stats["generationConfigured"] = s.requester.Configured()
	stats["voiceEnabled"] = s.bridge != nil
	stats["workerCount"] = ps.Workers
	stats["processed"] = ps.Processed
	stats["failed"] = ps.Failed
	stats["queueLength"] = queueLen
	stats["queueCapacity"] = s.queue.Capacity()
	stats["dedupeSize"] = s.keys.Size()

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateWorkerCount(ps.Workers)
	return stats
}
