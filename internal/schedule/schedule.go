// Package schedule triggers the daily alert run.
//
// The trigger is a plain cron entry; only the occurrence matters. The job
// carries no persisted run state: a missed or interrupted day is simply
// covered by the next firing.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "shelfbot/pkg/logx"
)

const defaultSpec = "0 9 * * *"

type Config struct {
	Spec     string // cron spec, e.g. "0 9 * * *"
	Timezone string // IANA name; defaults to Asia/Kolkata
}

// ValidateSpec reports whether spec is an acceptable cron expression.
// Empty means the default daily spec and is always valid.
func ValidateSpec(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("schedule.spec: %w", err)
	}
	return nil
}

type Service struct {
	cfg Config
	log logx.Logger
	job func(ctx context.Context)

	mu      sync.Mutex
	c       *cron.Cron
	runCtx  context.Context
	cancel  context.CancelFunc
	running bool
}

func New(cfg Config, job func(ctx context.Context), log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, job: job}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	spec := strings.TrimSpace(s.cfg.Spec)
	if spec == "" {
		spec = defaultSpec
	}

	loc := s.location()
	s.c = cron.New(cron.WithLocation(loc))
	s.runCtx, s.cancel = context.WithCancel(ctx)

	if _, err := s.c.AddFunc(spec, s.wrap(s.runCtx)); err != nil {
		s.cancel()
		return err
	}

	s.c.Start()
	s.running = true
	s.log.Info("schedule started", logx.String("spec", spec), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()

	stopped := s.c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.log.Warn("schedule stop timed out")
	}
	s.log.Info("schedule stopped")
}

// wrap guards a cron firing. The pipeline already recovers per shop, so
// this only catches panics outside that boundary.
func (s *Service) wrap(runCtx context.Context) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("scheduled run panicked", logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 16)))
			}
		}()
		s.job(runCtx)
	}
}

// Apply installs a new spec or timezone. A running service swaps its cron
// entry in place; an invalid spec keeps the previous one.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == cfg {
		return
	}
	s.cfg = cfg
	if !s.running {
		return
	}

	spec := strings.TrimSpace(cfg.Spec)
	if spec == "" {
		spec = defaultSpec
	}
	loc := s.location()
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, s.wrap(s.runCtx)); err != nil {
		s.log.Warn("invalid cron spec; keeping previous", logx.String("spec", spec), logx.Err(err))
		return
	}
	s.c.Stop()
	s.c = c
	c.Start()
	s.log.Info("schedule updated", logx.String("spec", spec), logx.String("tz", loc.String()))
}

func (s *Service) location() *time.Location {
	name := strings.TrimSpace(s.cfg.Timezone)
	if name == "" {
		name = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		s.log.Warn("unknown timezone; falling back to IST", logx.String("tz", name), logx.Err(err))
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}
