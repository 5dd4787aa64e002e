// internal/game/clock.go
package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type taskKind int

const (
	taskRoundEnd taskKind = iota + 1
	taskRoundStart
)

func (k taskKind) String() string {
	switch k {
	case taskRoundEnd:
		return "round_end"
	case taskRoundStart:
		return "round_start"
	}
	return "unknown"
}

type task struct {
	kind  taskKind
	round int
	timer *time.Timer
}

// RoundClock holds at most one scheduled task per lobby. Scheduling a task
// replaces the lobby's previous one. A task runs only if it can claim its slot,
// so a task that was cancelled, replaced or claimed by Claim never runs.
type RoundClock struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*task
	log   *logrus.Logger
}

func NewRoundClock(logger *logrus.Logger) *RoundClock {
	return &RoundClock{
		tasks: make(map[uuid.UUID]*task),
		log:   logger,
	}
}

// ScheduleRoundEnd runs fn after d unless the task is cancelled or claimed first.
func (c *RoundClock) ScheduleRoundEnd(lobbyID uuid.UUID, round int, d time.Duration, fn func()) {
	c.schedule(lobbyID, taskRoundEnd, round, d, fn)
}

// ScheduleRoundStart runs fn after d unless the task is cancelled or replaced first.
func (c *RoundClock) ScheduleRoundStart(lobbyID uuid.UUID, round int, d time.Duration, fn func()) {
	c.schedule(lobbyID, taskRoundStart, round, d, fn)
}

func (c *RoundClock) schedule(lobbyID uuid.UUID, kind taskKind, round int, d time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old := c.tasks[lobbyID]; old != nil {
		old.timer.Stop()
	}
	t := &task{kind: kind, round: round}
	t.timer = time.AfterFunc(d, func() {
		if !c.release(lobbyID, t) {
			return
		}
		c.run(lobbyID, t, fn)
	})
	c.tasks[lobbyID] = t
}

// release removes t from its slot if it still owns it.
func (c *RoundClock) release(lobbyID uuid.UUID, t *task) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tasks[lobbyID] != t {
		return false
	}
	delete(c.tasks, lobbyID)
	return true
}

func (c *RoundClock) run(lobbyID uuid.UUID, t *task, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.WithFields(logrus.Fields{
				"lobby": lobbyID,
				"task":  t.kind.String(),
				"round": t.round,
				"panic": rec,
			}).Error("scheduled task panicked")
		}
	}()
	fn()
}

// Claim takes the pending task for lobbyID if it matches kind and round, stopping
// its timer. It reports whether the caller won; at most one caller (including the
// timer itself) ever wins a given task.
func (c *RoundClock) Claim(lobbyID uuid.UUID, kind taskKind, round int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[lobbyID]
	if t == nil || t.kind != kind || t.round != round {
		return false
	}
	t.timer.Stop()
	delete(c.tasks, lobbyID)
	return true
}

// Cancel drops any pending task for lobbyID. Cancelling nothing is a no-op.
func (c *RoundClock) Cancel(lobbyID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.tasks[lobbyID]; t != nil {
		t.timer.Stop()
		delete(c.tasks, lobbyID)
	}
}

// Pending reports the kind and round of the lobby's scheduled task.
func (c *RoundClock) Pending(lobbyID uuid.UUID) (taskKind, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[lobbyID]
	if t == nil {
		return 0, 0, false
	}
	return t.kind, t.round, true
}

// Stop cancels every pending task.
func (c *RoundClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.tasks {
		t.timer.Stop()
		delete(c.tasks, id)
	}
}
