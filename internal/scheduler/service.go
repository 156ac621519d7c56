package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glizzus/herald/internal/claim"
	"github.com/glizzus/herald/internal/eventhandler"
	"github.com/glizzus/herald/internal/generator"
	"github.com/glizzus/herald/internal/messaging"
	"github.com/glizzus/herald/internal/repository"
	"github.com/robfig/cron/v3"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultBatchSize    = 50
	maxIDAttempts       = 10
)

// Archiver receives a snapshot of every event that reaches a terminal status.
type Archiver interface {
	Archive(ctx context.Context, event repository.ScheduledEvent) error
}

type Options struct {
	PollInterval    time.Duration
	BatchSize       int
	DefaultTimezone string
	Logger          *slog.Logger

	IDGenerator    generator.Generator[string]
	RunIDGenerator generator.Generator[string]
	Claimer        claim.Claimer
	Archiver       Archiver
	Now            func() time.Time
}

type Service struct {
	store     repository.EventStore
	directory messaging.Directory
	log       *slog.Logger

	ids      generator.Generator[string]
	runIDs   generator.Generator[string]
	claimer  claim.Claimer
	archiver Archiver
	now      func() time.Time

	pollInterval    time.Duration
	batchSize       int
	defaultTimezone string

	handlersMu sync.RWMutex
	handlers   map[repository.EventType]eventhandler.EventHandler

	timersMu sync.Mutex
	timers   map[string]cron.EntryID
	cron     *cron.Cron

	fired    chan string
	draining atomic.Bool
	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(store repository.EventStore, directory messaging.Directory, opts Options) *Service {
	s := &Service{
		store:           store,
		directory:       directory,
		log:             opts.Logger,
		ids:             opts.IDGenerator,
		runIDs:          opts.RunIDGenerator,
		claimer:         opts.Claimer,
		archiver:        opts.Archiver,
		now:             opts.Now,
		pollInterval:    opts.PollInterval,
		batchSize:       opts.BatchSize,
		defaultTimezone: opts.DefaultTimezone,
		handlers:        make(map[repository.EventType]eventhandler.EventHandler),
		timers:          make(map[string]cron.EntryID),
		fired:           make(chan string),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.ids == nil {
		s.ids = &generator.EventIDGenerator{}
	}
	if s.runIDs == nil {
		s.runIDs = &generator.UUIDV4Generator{}
	}
	if s.claimer == nil {
		s.claimer = claim.NoopClaimer{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.defaultTimezone == "" {
		s.defaultTimezone = "UTC"
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.cron = cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))
	return s
}

// RegisterHandler makes h responsible for events of its type.
// A later registration for the same type replaces the earlier one.
func (s *Service) RegisterHandler(h eventhandler.EventHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[h.Type()] = h
}

func (s *Service) handler(eventType repository.EventType) (eventhandler.EventHandler, bool) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	h, ok := s.handlers[eventType]
	return h, ok
}

// HandledTypes lists the event types with a registered handler.
func (s *Service) HandledTypes() []repository.EventType {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	types := slices.Collect(maps.Keys(s.handlers))
	slices.Sort(types)
	return types
}

// Describe renders an event for listings using its handler's formatter when available.
func (s *Service) Describe(event repository.ScheduledEvent) string {
	if h, ok := s.handler(event.EventType); ok {
		if d, ok := h.(eventhandler.Displayer); ok {
			return d.FormatDisplay(event)
		}
	}
	return string(event.EventType)
}

// Initialize starts the polling loop and arms a cron timer for every active
// recurring event in the store. Events with an unusable cron schedule are
// logged and skipped.
func (s *Service) Initialize(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}

	s.cron.Start()
	go s.run(ctx)
	s.log.Info("Scheduler started", "pollInterval", s.pollInterval, "batchSize", s.batchSize)

	recurring, err := s.store.FindAll(ctx, repository.EventFilter{
		Statuses:      []repository.Status{repository.StatusActive},
		ScheduleTypes: []repository.ScheduleType{repository.ScheduleRecurring, repository.ScheduleCron},
	}, 0, repository.OrderNone)
	if err != nil {
		return fmt.Errorf("failed to load recurring events: %w", err)
	}

	armed := 0
	for _, event := range recurring {
		if s.startTimer(event) {
			armed++
		}
	}
	s.log.Info("Recurring events loaded", "total", len(recurring), "armed", armed)
	return nil
}

// run drives polling and cron firings until Shutdown or ctx is done. Executions
// get a context detached from ctx, so one already under way still delivers and
// records its result after ctx is cancelled.
func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	work := context.WithoutCancel(ctx)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if s.draining.Load() {
				return
			}
			s.ProcessDueEvents(work)
		case eventID := <-s.fired:
			if s.draining.Load() {
				return
			}
			s.runRecurring(work, eventID)
		}
	}
}

// Shutdown stops polling and disarms every cron timer. An execution already in
// progress is allowed to finish; Shutdown waits for it until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	s.stopOnce.Do(func() { close(s.stop) })

	<-s.cron.Stop().Done()

	s.timersMu.Lock()
	for eventID, entryID := range s.timers {
		s.cron.Remove(entryID)
		delete(s.timers, eventID)
	}
	s.timersMu.Unlock()

	if !s.started.Load() {
		return nil
	}
	select {
	case <-s.done:
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
