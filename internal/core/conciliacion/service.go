package conciliacion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"conciliacion-service/internal/domain"
)

// ErrStalePass is returned when a newer pass was requested before this one started.
var ErrStalePass = errors.New("reconciliation pass superseded by a newer request")

// ResultCache stores results by content hash.
type ResultCache interface {
	Get(ctx context.Context, hash string) (*domain.Result, bool, error)
	Set(ctx context.Context, hash string, res *domain.Result) error
}

// Recorder receives pass instrumentation.
type Recorder interface {
	ObservePass(result string, d time.Duration)
	ObserveResult(installments, verifiedPayments int)
}

// Pass outcomes reported to the Recorder.
const (
	PassComputed = "computed"
	PassCached   = "cached"
	PassStale    = "stale"
)

type nopRecorder struct{}

func (nopRecorder) ObservePass(string, time.Duration) {}
func (nopRecorder) ObserveResult(int, int)            {}

// Service runs passes and publishes the latest result. Concurrent requests
// for the same content share one computation.
type Service struct {
	opts     Options
	cache    ResultCache
	logger   *zap.Logger
	recorder Recorder

	group singleflight.Group

	mu         sync.Mutex
	generation uint64
	latestHash string
	published  uint64
	current    atomic.Pointer[domain.Result]
}

// NewService creates a Service. cache and recorder may be nil.
func NewService(opts Options, cache ResultCache, logger *zap.Logger, recorder Recorder) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		opts:     opts.withDefaults(),
		cache:    cache,
		logger:   logger,
		recorder: recorder,
	}
}

// Current returns the last published result, or nil before the first pass.
func (s *Service) Current() *domain.Result {
	return s.current.Load()
}

// request registers a pass for hash and returns its generation.
func (s *Service) request(hash string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.latestHash = hash
	return s.generation
}

// stale reports whether content other than hash was requested since gen.
func (s *Service) stale(gen uint64, hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation != gen && s.latestHash != hash
}

// Reconcile returns the result for src, from the cache when the content is
// unchanged. A pass whose content was superseded by a newer request before
// it started is not run and returns ErrStalePass.
func (s *Service) Reconcile(ctx context.Context, src domain.Sources) (*domain.Result, error) {
	hash := ContentHash(src)
	gen := s.request(hash)

	if cur := s.Current(); cur != nil && cur.Hash == hash {
		s.recorder.ObservePass(PassCached, 0)
		return cur, nil
	}

	v, err, _ := s.group.Do(hash, func() (any, error) {
		return s.pass(ctx, gen, hash, src)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*domain.Result)
	s.publish(gen, res)
	return res, nil
}

func (s *Service) pass(ctx context.Context, gen uint64, hash string, src domain.Sources) (*domain.Result, error) {
	start := time.Now()

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, hash)
		if err != nil {
			s.logger.Warn("result cache read failed", zap.String("hash", hash), zap.Error(err))
		} else if ok {
			s.recorder.ObservePass(PassCached, time.Since(start))
			return cached, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.stale(gen, hash) {
		s.logger.Debug("skipping stale pass", zap.String("hash", hash), zap.Uint64("generation", gen))
		s.recorder.ObservePass(PassStale, time.Since(start))
		return nil, ErrStalePass
	}

	res := Run(src, s.opts)
	res.Hash = hash
	elapsed := time.Since(start)

	verified := res.VerifiedPayments()
	s.recorder.ObservePass(PassComputed, elapsed)
	s.recorder.ObserveResult(len(res.Installments), verified)
	s.logger.Info("reconciliation pass completed",
		zap.String("hash", hash),
		zap.Int("orders", len(res.Orders)),
		zap.Int("installments", len(res.Installments)),
		zap.Int("payments", len(res.Payments)),
		zap.Int("bank_lines", len(res.BankLines)),
		zap.Int("verified", verified),
		zap.Duration("duration", elapsed),
	)

	if s.cache != nil {
		if err := s.cache.Set(ctx, hash, res); err != nil {
			s.logger.Warn("result cache write failed", zap.String("hash", hash), zap.Error(err))
		}
	}
	return res, nil
}

// publish swaps in res unless a newer generation already published.
func (s *Service) publish(gen uint64, res *domain.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen < s.published {
		return
	}
	s.published = gen
	s.current.Store(res)
}
