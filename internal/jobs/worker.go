package jobs

import (
	"context"
	"log"
	"time"
)

// MaxBackoff caps the delay between passes while ProcessJobs keeps failing.
const MaxBackoff = time.Minute

// JobProcessor runs one pass over whatever work is pending.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker calls a JobProcessor on a fixed interval. After a failed pass the
// delay doubles, up to MaxBackoff, and resets on the next success.
type Worker struct {
	processor    JobProcessor
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		processor:    processor,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs the polling loop until ctx is cancelled or Stop is called. A
// Stop runs one final pass so settled files are not left behind.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	delay := w.pollInterval
	timer := time.NewTimer(delay)
	defer timer.Stop()

	log.Printf("Worker started with poll interval: %v", w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("Worker stopped: context cancelled")
			return
		case <-w.stopChan:
			w.runOnce(ctx)
			log.Println("Worker stopped: stop signal received")
			return
		case <-timer.C:
			delay = w.nextDelay(delay, w.runOnce(ctx))
			timer.Reset(delay)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) error {
	err := w.processor.ProcessJobs(ctx)
	if err != nil {
		log.Printf("Error processing jobs: %v", err)
	}
	return err
}

func (w *Worker) nextDelay(current time.Duration, err error) time.Duration {
	if err == nil {
		return w.pollInterval
	}
	next := current * 2
	if next > MaxBackoff {
		next = MaxBackoff
	}
	if next < w.pollInterval {
		next = w.pollInterval
	}
	return next
}

// Stop signals the loop and waits for the final pass to finish.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Println("Worker shutdown complete")
}
