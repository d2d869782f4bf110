// Package app wires stores, sinks, and services into a runnable
// application.
package app

import (
	"github.com/launchwave/launchwave/internal/audit"
	"github.com/launchwave/launchwave/internal/config"
	"github.com/launchwave/launchwave/internal/middleware"
	"github.com/launchwave/launchwave/internal/services/admission"
	"github.com/launchwave/launchwave/internal/services/waves"
	"github.com/launchwave/launchwave/internal/storage"
	"github.com/launchwave/launchwave/internal/storage/memory"
	"github.com/launchwave/launchwave/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to a
// shared in-memory implementation seeded with the configured pool caps.
type Stores struct {
	Capacity storage.CapacityStore
	Signups  storage.SignupStore
	Waves    storage.WaveStore
}

// Application ties the admission and wave services together.
type Application struct {
	Log       *logger.Logger
	Admission *admission.Service
	Waves     *waves.Service

	// Audit is the in-memory sink backing the audit read endpoint.
	Audit *audit.MemorySink

	// Limiter guards the bulk-removal boundary.
	Limiter *middleware.RateLimiter
}

type capacitySignupStore struct {
	storage.CapacityStore
	storage.SignupStore
}

// New builds a fully initialised application. Extra sinks (typically
// the database-backed audit trail) are fanned out alongside the
// in-memory and optional file sinks.
func New(cfg *config.Config, stores Stores, log *logger.Logger, extra ...audit.Sink) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.NewDefault("app")
	}

	if stores.Capacity == nil || stores.Signups == nil || stores.Waves == nil {
		mem := memory.NewWithPools(cfg.Admission.Pools())
		if stores.Capacity == nil {
			stores.Capacity = mem
		}
		if stores.Signups == nil {
			stores.Signups = mem
		}
		if stores.Waves == nil {
			stores.Waves = mem
		}
	}

	memSink := audit.NewMemorySink(cfg.Audit.MemoryMax)
	sinks := []audit.Sink{memSink}
	if cfg.Audit.FilePath != "" {
		fileSink, err := audit.NewFileSink(cfg.Audit.FilePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
	}
	for _, s := range extra {
		if s != nil {
			sinks = append(sinks, s)
		}
	}
	sink := audit.MultiSink(sinks)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)

	admissionSvc := admission.New(capacitySignupStore{stores.Capacity, stores.Signups}, sink, log)
	waveSvc := waves.New(stores.Waves, sink, nil, waves.Options{
		PromoteLimitMax: cfg.Waves.PromoteLimitMax,
		RemoveLimitMax:  cfg.Waves.RemoveLimitMax,
		PromotePhrase:   cfg.Waves.PromotePhrase,
		RemovePhrase:    cfg.Waves.RemovePhrase,
	}, log)

	return &Application{
		Log:       log,
		Admission: admissionSvc,
		Waves:     waveSvc,
		Audit:     memSink,
		Limiter:   limiter,
	}, nil
}
