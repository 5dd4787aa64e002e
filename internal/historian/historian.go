// Package historian drains session records from the history queue into the
// database and marks games that went quiet as abandoned.
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/showguessr/server/internal/models"
	"github.com/sirupsen/logrus"
)

// Source yields queued records. ok is false when nothing arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (rec models.SessionRecord, ok bool, err error)
}

// Sink persists records.
type Sink interface {
	SaveRecords(ctx context.Context, recs []models.SessionRecord) error
	MarkAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error)
}

type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	PopTimeout    time.Duration
	// Inactivity is how long a game may go without records before it is
	// marked abandoned.
	Inactivity    time.Duration
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:     20,
		FlushInterval: 500 * time.Millisecond,
		PopTimeout:    3 * time.Second,
		Inactivity:    10 * time.Minute,
		SweepInterval: time.Minute,
	}
}

func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return errors.New("batch size must be at least 1")
	}
	if c.FlushInterval <= 0 || c.PopTimeout <= 0 || c.SweepInterval <= 0 {
		return errors.New("intervals must be positive")
	}
	if c.Inactivity <= 0 {
		return errors.New("inactivity must be positive")
	}
	return nil
}

// Service batches records from a Source into a Sink.
type Service struct {
	src  Source
	sink Sink
	cfg  Config
	log  *logrus.Logger
	now  func() time.Time

	lastActivity sync.Map // map[uuid.UUID]time.Time

	batchMu sync.Mutex
	batch   []models.SessionRecord
}

func NewService(src Source, sink Sink, logger *logrus.Logger, cfg Config) *Service {
	return &Service{
		src:   src,
		sink:  sink,
		cfg:   cfg,
		log:   logger,
		now:   time.Now,
		batch: make([]models.SessionRecord, 0, cfg.BatchSize),
	}
}

// Run consumes until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.sweepLoop(ctx)
	}()

	s.log.Info("historian started")
	s.readLoop(ctx)
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.log.Info("historian stopped")
	return nil
}

func (s *Service) readLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		default:
			rec, ok, err := s.src.Pop(ctx, s.cfg.PopTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.WithError(err).Error("pop session record")
				continue
			}
			if ok {
				s.Add(ctx, rec)
			}
		}
	}
}

// Add tracks rec's game activity and queues it, flushing once the batch is full.
func (s *Service) Add(ctx context.Context, rec models.SessionRecord) {
	switch rec.Kind {
	case models.RecordGameEnd, models.RecordGameAborted:
		s.lastActivity.Delete(rec.GameID)
	default:
		s.lastActivity.Store(rec.GameID, s.now())
	}

	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush writes the pending batch in one transaction. A failed batch is logged
// and dropped.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := make([]models.SessionRecord, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.sink.SaveRecords(ctx, pending); err != nil {
		s.log.WithError(err).WithField("records", len(pending)).Error("flush session records")
		return
	}
	s.log.WithField("records", len(pending)).Debug("flushed session records")
}

func (s *Service) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep marks every game idle for longer than the inactivity window as abandoned.
func (s *Service) Sweep(ctx context.Context) {
	now := s.now()
	s.lastActivity.Range(func(key, val any) bool {
		gameID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.cfg.Inactivity {
			return true
		}
		changed, err := s.sink.MarkAbandoned(ctx, gameID)
		if err != nil {
			s.log.WithError(err).WithField("game", gameID).Error("mark game abandoned")
			return true
		}
		s.lastActivity.Delete(gameID)
		if changed {
			s.log.WithField("game", gameID).Info("marked game abandoned due to inactivity")
		}
		return true
	})
}
