// Package progress fans live execution snapshots out to connected
// observers and caches the latest snapshot for status polling.
package progress

import (
	"log/slog"
	"sync"

	"github.com/casthq/caster/pkg/models"
)

// Observer receives progress snapshots for one execution. A returned
// error marks the observer dead and evicts it from the registry.
type Observer interface {
	Notify(snapshot models.ProgressSnapshot) error
}

// Broadcaster maintains the registry of live observers per execution.
// Membership is self-healing: observers that fail a send are dropped as
// a side effect, no health-check loop exists.
type Broadcaster struct {
	mu        sync.Mutex
	logger    *slog.Logger
	observers map[string]map[Observer]struct{}
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:    logger,
		observers: make(map[string]map[Observer]struct{}),
	}
}

// Connect registers an observer for an execution.
func (b *Broadcaster) Connect(executionID string, observer Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.observers[executionID] == nil {
		b.observers[executionID] = make(map[Observer]struct{})
	}

	b.observers[executionID][observer] = struct{}{}
}

// Disconnect removes an observer. Empty execution buckets are deleted so
// the registry does not grow with finished executions.
func (b *Broadcaster) Disconnect(executionID string, observer Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.remove(executionID, observer)
}

// Broadcast pushes a snapshot to every observer of an execution. The
// observer set is copied under the lock and sends happen outside it, so
// a slow observer never blocks registration of other executions.
func (b *Broadcaster) Broadcast(executionID string, snapshot models.ProgressSnapshot) {
	b.mu.Lock()

	bucket := b.observers[executionID]
	observers := make([]Observer, 0, len(bucket))

	for observer := range bucket {
		observers = append(observers, observer)
	}

	b.mu.Unlock()

	if len(observers) == 0 {
		return
	}

	var dead []Observer

	for _, observer := range observers {
		err := observer.Notify(snapshot)
		if err != nil {
			dead = append(dead, observer)
		}
	}

	if len(dead) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, observer := range dead {
		b.remove(executionID, observer)
	}

	b.logger.Debug("Evicted dead progress observers", "execution_id", executionID, "count", len(dead))
}

// ObserverCount reports the current number of observers for an
// execution.
func (b *Broadcaster) ObserverCount(executionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.observers[executionID])
}

func (b *Broadcaster) remove(executionID string, observer Observer) {
	bucket, ok := b.observers[executionID]
	if !ok {
		return
	}

	delete(bucket, observer)

	if len(bucket) == 0 {
		delete(b.observers, executionID)
	}
}
