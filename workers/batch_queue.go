package workers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/camden-git/faceenhancer/realtime"
)

// Batch states reported by BatchQueue.Status.
const (
	BatchQueued    = "queued"
	BatchRunning   = "running"
	BatchCompleted = "completed"
	BatchFailed    = "failed"
)

// DefaultBatchRetention is how many finished batches Status remembers.
const DefaultBatchRetention = 256

type BatchJob struct {
	ID      string
	Inputs  []string
	Options BatchOptions
}

type BatchStatus struct {
	ID         string        `json:"id"`
	State      string        `json:"state"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Succeeded  int           `json:"succeeded"`
	QueuedAt   time.Time     `json:"queued_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Summary    *BatchSummary `json:"summary,omitempty"`
}

// BatchQueue runs submitted batches on a fixed pool of workers.
type BatchQueue struct {
	JobQueue chan BatchJob
	runner   *BatchRunner
	notifier Notifier
	Wg       sync.WaitGroup
	StopChan chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	statuses map[string]*BatchStatus
	finished []string
	retain   int
	stopped  bool
	stopOnce sync.Once
	Mutex    sync.Mutex
	log      logrus.FieldLogger
}

func NewBatchQueue(runner *BatchRunner, notifier Notifier, queueSize, numWorkers int, log logrus.FieldLogger) *BatchQueue {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &BatchQueue{
		JobQueue: make(chan BatchJob, queueSize),
		runner:   runner,
		notifier: notifier,
		StopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		statuses: make(map[string]*BatchStatus),
		retain:   DefaultBatchRetention,
		log:      log.WithField("component", "batch_queue"),
	}
	q.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go q.worker(i)
	}
	q.log.WithFields(logrus.Fields{"workers": numWorkers, "queue_size": queueSize}).Info("started batch workers")
	return q
}

func (q *BatchQueue) worker(id int) {
	defer q.Wg.Done()
	log := q.log.WithField("worker", id)
	log.Debug("batch worker started")
	for {
		select {
		case job, ok := <-q.JobQueue:
			if !ok {
				log.Debug("batch worker stopping: job queue closed")
				return
			}
			q.run(job)
		case <-q.StopChan:
			log.Debug("batch worker stopping: stop signal received")
			return
		}
	}
}

func (q *BatchQueue) run(job BatchJob) {
	now := time.Now()
	q.update(job.ID, func(s *BatchStatus) {
		s.State = BatchRunning
		s.StartedAt = &now
	})

	opts := job.Options
	opts.ID = job.ID
	onItem := opts.OnItem
	opts.OnItem = func(item ItemResult) {
		q.update(job.ID, func(s *BatchStatus) {
			s.Processed++
			if item.Succeeded() {
				s.Succeeded++
			}
		})
		if onItem != nil {
			onItem(item)
		}
	}

	summary := q.runner.EnhanceBatch(q.ctx, job.Inputs, opts)

	state := BatchCompleted
	if !summary.OK() {
		state = BatchFailed
	}
	q.finish(job.ID, state, summary)
}

// finish marks a batch done and forgets the oldest finished batches beyond
// the retention limit.
func (q *BatchQueue) finish(id, state string, summary *BatchSummary) {
	now := time.Now()
	q.Mutex.Lock()
	defer q.Mutex.Unlock()
	s, ok := q.statuses[id]
	if !ok {
		return
	}
	s.State = state
	s.FinishedAt = &now
	s.Summary = summary

	q.finished = append(q.finished, id)
	for len(q.finished) > q.retain {
		delete(q.statuses, q.finished[0])
		q.finished = q.finished[1:]
	}
}

func (q *BatchQueue) update(id string, fn func(*BatchStatus)) {
	q.Mutex.Lock()
	defer q.Mutex.Unlock()
	if s, ok := q.statuses[id]; ok {
		fn(s)
	}
}

// Submit queues a batch without blocking. It returns false when the queue
// is full or stopped, or the id is already known.
func (q *BatchQueue) Submit(job BatchJob) (string, bool) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	log := q.log.WithField("batch_id", job.ID)

	q.Mutex.Lock()
	if q.stopped {
		q.Mutex.Unlock()
		log.Warn("batch queue stopped, rejecting batch")
		return job.ID, false
	}
	if _, exists := q.statuses[job.ID]; exists {
		q.Mutex.Unlock()
		return job.ID, false
	}
	q.statuses[job.ID] = &BatchStatus{ID: job.ID, State: BatchQueued, Total: len(job.Inputs), QueuedAt: time.Now()}
	select {
	case q.JobQueue <- job:
		q.Mutex.Unlock()
	default:
		delete(q.statuses, job.ID)
		q.Mutex.Unlock()
		log.Warn("batch queue full, rejecting batch")
		return job.ID, false
	}

	log.WithField("inputs", len(job.Inputs)).Info("queued batch")
	if q.notifier != nil {
		q.notifier.Broadcast(realtime.Event{Type: realtime.EventBatchQueued, BatchID: job.ID, Status: BatchQueued})
	}
	return job.ID, true
}

// Status returns a snapshot of a batch's progress.
func (q *BatchQueue) Status(id string) (BatchStatus, bool) {
	q.Mutex.Lock()
	defer q.Mutex.Unlock()
	s, ok := q.statuses[id]
	if !ok {
		return BatchStatus{}, false
	}
	return *s, true
}

// Stop cancels running batches and waits for the workers to exit. Batches
// still waiting in the queue are marked failed; later submissions are
// rejected.
func (q *BatchQueue) Stop() {
	q.stopOnce.Do(func() {
		q.log.Info("stopping batch workers")
		q.Mutex.Lock()
		q.stopped = true
		q.Mutex.Unlock()

		q.cancel()
		close(q.StopChan)
		q.Wg.Wait()

		for {
			select {
			case job := <-q.JobQueue:
				q.log.WithField("batch_id", job.ID).Warn("dropping queued batch on shutdown")
				q.finish(job.ID, BatchFailed, nil)
			default:
				q.log.Info("all batch workers stopped")
				return
			}
		}
	})
}
