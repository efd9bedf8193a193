package queue

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxAttempts = 5

// Job is a request the gateway could not deliver and will replay later.
type Job struct {
	ID          string
	Method      string
	Path        string
	Headers     map[string]string
	Body        []byte
	RetryAt     time.Time
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
}

type Queue struct {
	items   []*Job
	backoff time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

func New(backoff time.Duration) *Queue {
	return &Queue{
		items:   make([]*Job, 0),
		backoff: backoff,
		now:     time.Now,
	}
}

// Enqueue fills in the ID, schedule and attempt limit when they are unset
// and returns the job ID.
func (q *Queue) Enqueue(job *Job) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.RetryAt.IsZero() {
		job.RetryAt = now.Add(q.backoff)
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	q.items = append(q.items, job)
	return job.ID
}

// Dequeue removes and returns the first job that is due, or nil.
func (q *Queue) Dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for i, job := range q.items {
		if !job.RetryAt.After(now) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return job
		}
	}
	return nil
}

// Requeue schedules another attempt with linear backoff. It reports false
// once the job has used up its attempts; the job is then dropped.
func (q *Queue) Requeue(job *Job) bool {
	job.Attempts++
	if job.Attempts >= job.MaxAttempts {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	job.RetryAt = q.now().Add(q.backoff * time.Duration(job.Attempts+1))
	q.items = append(q.items, job)
	return true
}

// Process hands every due job to deliver. Jobs whose delivery fails are
// requeued. It returns the number delivered.
func (q *Queue) Process(deliver func(*Job) error) int {
	delivered := 0
	var failed []*Job
	for job := q.Dequeue(); job != nil; job = q.Dequeue() {
		if err := deliver(job); err != nil {
			failed = append(failed, job)
			continue
		}
		delivered++
	}

	for _, job := range failed {
		if !q.Requeue(job) {
			log.Printf("Dropping %s %s (job %s) after %d attempts", job.Method, job.Path, job.ID, job.Attempts)
		}
	}
	return delivered
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) List() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make([]Job, len(q.items))
	for i, job := range q.items {
		result[i] = *job
	}
	return result
}
