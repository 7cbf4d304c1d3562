package api

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// eventPublisher delivers task events to the event queue off the request
// path. Delivery is best-effort: a saturated buffer or a failing queue is
// logged and never fails the API call that produced the event.
type eventPublisher struct {
	store   Store
	logger  *log.Logger
	events  chan domain.TaskEvent
	timeout time.Duration
	wg      sync.WaitGroup
	closed  atomic.Bool
}

func newEventPublisher(store Store, logger *log.Logger) *eventPublisher {
	p := &eventPublisher{
		store:   store,
		logger:  logger,
		events:  make(chan domain.TaskEvent, envInt("EVENTS_BUFFER", 1024)),
		timeout: envDur("EVENTS_ENQUEUE_TIMEOUT", 30*time.Second),
	}
	workers := envInt("EVENTS_WORKERS", 4)
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *eventPublisher) worker() {
	defer p.wg.Done()
	for ev := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.store.EnqueueEvents(ctx, []domain.TaskEvent{ev})
		cancel()
		if err != nil && p.logger != nil {
			p.logger.WithFields(log.Fields{
				"event": ev.Type,
				"task":  ev.TaskID,
			}).WithError(err).Error("event enqueue failed")
		}
	}
}

// close drains the workers; used by tests.
func (p *eventPublisher) close() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.events)
	}
	p.wg.Wait()
}

func (p *eventPublisher) publishCreated(task domain.Task) {
	p.publish(domain.EventTaskCreated, task)
}

func (p *eventPublisher) publishUpdated(task domain.Task) {
	p.publish(domain.EventTaskUpdated, task)
}

func (p *eventPublisher) publish(eventType string, task domain.Task) {
	if p == nil || p.closed.Load() {
		return
	}
	data, err := sonic.Marshal(task)
	if err != nil {
		if p.logger != nil {
			p.logger.WithError(err).Error("event payload encode failed")
		}
		return
	}
	ev := domain.TaskEvent{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		TeamID:    task.TeamID,
		Type:      eventType,
		Data:      data,
		Timestamp: nextTimestamp(),
	}
	select {
	case p.events <- ev:
	default:
		if p.logger != nil {
			p.logger.WithFields(log.Fields{
				"event": ev.Type,
				"task":  ev.TaskID,
			}).Warn("event buffer saturated, dropping event")
		}
	}
}

var lastTimestamp int64

// nextTimestamp returns strictly increasing nanosecond timestamps so events
// for the same task are orderable even within one clock tick.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
