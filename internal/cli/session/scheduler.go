package session

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultRefreshInterval is how often the current user is re-fetched
const DefaultRefreshInterval = 5 * time.Minute

// Scheduler runs one periodic job at a time
type Scheduler interface {
	// Start arms job every interval. Starting an armed scheduler is a no-op.
	Start(interval time.Duration, job func()) error
	// Stop disarms the job. Stopping a disarmed scheduler is a no-op.
	Stop()
}

// CronScheduler is the production Scheduler, backed by robfig/cron
type CronScheduler struct {
	logger zerolog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewCronScheduler(logger zerolog.Logger) *CronScheduler {
	return &CronScheduler{logger: logger}
}

func (s *CronScheduler) Start(interval time.Duration, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	cronLogger := cronLogAdapter{logger: s.logger}
	// Recover must sit inside SkipIfStillRunning: the skip wrapper only frees
	// its slot when the job returns, so an escaping panic would block every
	// later tick.
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger), cron.Recover(cronLogger)),
	)
	c.Schedule(cron.Every(interval), cron.FuncJob(job))
	c.Start()

	s.cron = c
	s.logger.Debug().Dur("interval", interval).Msg("Session refresh armed")
	return nil
}

func (s *CronScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}

	// Running jobs are not awaited; the store drops their results
	s.cron.Stop()
	s.cron = nil
	s.logger.Debug().Msg("Session refresh disarmed")
}

// Armed reports whether a job is scheduled
func (s *CronScheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// cronLogAdapter routes cron's logging into zerolog
type cronLogAdapter struct {
	logger zerolog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
