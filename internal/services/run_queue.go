package services

import (
	"sync"

	"github.com/sirupsen/logrus"

	"mcpsentry/pkg/logger"
)

// RunQueue bounds how many runs execute concurrently with a simple
// semaphore. Runs beyond the limit wait their turn; each run's stages
// still execute sequentially inside its slot.
type RunQueue struct {
	semaphore chan struct{}
	running   int
	queued    int
	mu        sync.Mutex
	logger    *logger.Logger
}

func NewRunQueue(maxConcurrent int) *RunQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &RunQueue{
		semaphore: make(chan struct{}, maxConcurrent),
		logger:    logger.NewLogger(logrus.InfoLevel),
	}
}

// ExecuteWithQueue blocks until a slot is available, then executes fn.
func (q *RunQueue) ExecuteWithQueue(fn func() error) error {
	q.mu.Lock()
	q.queued++
	currentQueued := q.queued
	currentRunning := q.running
	q.mu.Unlock()

	q.logger.Info("Run added to queue", logger.Fields{
		"queued":  currentQueued,
		"running": currentRunning,
		"slots":   cap(q.semaphore),
	})

	q.semaphore <- struct{}{}

	q.mu.Lock()
	q.queued--
	q.running++
	q.mu.Unlock()

	defer func() {
		<-q.semaphore
		q.mu.Lock()
		q.running--
		remainingRunning := q.running
		remainingQueued := q.queued
		q.mu.Unlock()

		q.logger.Info("Run slot released", logger.Fields{
			"running": remainingRunning,
			"queued":  remainingQueued,
		})
	}()

	return fn()
}

// GetStatus returns current queue occupancy.
func (q *RunQueue) GetStatus() (running, queued, maxConcurrent int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running, q.queued, cap(q.semaphore)
}
