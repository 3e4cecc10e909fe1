package server

import (
	"sync"

	"github.com/decred/slog"

	"ridebus/pkg/game"
)

// EventProcessor drains room events from a bounded queue and hands them to
// the gateway's fan-out. A single worker keeps notification order matching
// mutation order; more can be configured when ordering across rooms does not
// matter.
type EventProcessor struct {
	log      slog.Logger
	queue    chan game.Event
	handler  func(game.Event)
	workers  int
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewEventProcessor creates a processor with the given queue size and worker
// count.
func NewEventProcessor(log slog.Logger, queueSize, workerCount int, handler func(game.Event)) *EventProcessor {
	if workerCount < 1 {
		workerCount = 1
	}
	return &EventProcessor{
		log:      log,
		queue:    make(chan game.Event, queueSize),
		handler:  handler,
		workers:  workerCount,
		stopChan: make(chan struct{}),
	}
}

// Channel returns the channel rooms publish into.
func (ep *EventProcessor) Channel() chan<- game.Event {
	return ep.queue
}

// Start begins processing events.
func (ep *EventProcessor) Start() {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.started {
		return
	}
	ep.started = true
	ep.log.Debugf("starting event processor with %d worker(s)", ep.workers)

	for i := 0; i < ep.workers; i++ {
		ep.wg.Add(1)
		go ep.run(i)
	}
}

// Stop gracefully stops the processor. Queued events that have not been
// picked up yet are dropped.
func (ep *EventProcessor) Stop() {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if !ep.started {
		return
	}

	close(ep.stopChan)
	ep.wg.Wait()
	ep.started = false
	ep.log.Debugf("event processor stopped")
}

func (ep *EventProcessor) run(id int) {
	defer ep.wg.Done()

	for {
		select {
		case <-ep.stopChan:
			ep.log.Tracef("event worker %d stopping", id)
			return
		case event := <-ep.queue:
			ep.handler(event)
		}
	}
}
