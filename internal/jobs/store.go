package jobs

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultTTL is how long a finished job stays retrievable before the
	// sweeper drops it. State is purely in-memory; nothing survives a
	// process restart.
	DefaultTTL = 30 * time.Minute

	sweepInterval = time.Minute
)

// Store is the process-wide registry of generation jobs. It owns the job
// records and the progress fan-out; everything is guarded by one mutex so
// a subscriber snapshot and its live tail can never diverge.
type Store struct {
	logger zerolog.Logger
	ttl    time.Duration

	mu   sync.Mutex
	jobs map[string]*Job
	hub  *hub

	done chan struct{}
	once sync.Once
}

// NewStore creates an empty store and starts its expiry sweeper. A ttl of
// zero selects DefaultTTL.
func NewStore(logger zerolog.Logger, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		logger: logger,
		ttl:    ttl,
		jobs:   make(map[string]*Job),
		hub:    newHub(),
		done:   make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Close stops the expiry sweeper.
func (s *Store) Close() {
	s.once.Do(func() { close(s.done) })
}

// NewJobID returns a fresh unguessable job identifier. Job IDs double as
// bearer tokens for the stream and download endpoints, so they must carry
// real entropy.
func (s *Store) NewJobID() string {
	return uuid.NewString()
}

// Create registers a running job. An existing record under the same id is
// overwritten; callers are expected to use NewJobID.
func (s *Store) Create(id, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = &Job{
		ID:        id,
		Label:     label,
		Status:    StatusRunning,
		CreatedAt: time.Now(),
	}
}

// AddProgress appends a progress message and fans it out to subscribers.
// Unknown ids are tolerated: background workflows may race job expiry, and
// a lost progress line must never take the workflow down.
func (s *Store) AddProgress(id, phase, message, detail, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		s.logger.Debug().Str("job_id", id).Str("phase", phase).Msg("progress for unknown job dropped")
		return
	}
	if job.Status != StatusRunning {
		s.logger.Debug().Str("job_id", id).Str("phase", phase).Msg("progress after completion dropped")
		return
	}
	msg := ProgressMessage{
		Phase:     phase,
		Message:   message,
		Detail:    detail,
		Step:      step,
		Timestamp: time.Now(),
	}
	job.Messages = append(job.Messages, msg)
	s.hub.publish(id, msg)
}

// Complete moves a job to its terminal state exactly once and synthesizes
// the single terminal progress event (complete or error). A second call on
// an already-terminal job is a no-op. Artifact bytes on the result are
// moved onto the job record and are immutable afterwards.
func (s *Store) Complete(id string, success bool, result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		s.logger.Debug().Str("job_id", id).Msg("completion for unknown job dropped")
		return
	}
	if job.Status != StatusRunning {
		s.logger.Warn().Str("job_id", id).Str("status", string(job.Status)).Msg("duplicate completion ignored")
		return
	}

	if success {
		job.Status = StatusSucceeded
	} else {
		job.Status = StatusFailed
	}
	job.CompletedAt = time.Now()
	if result != nil {
		if success {
			job.DWG = result.DWG
			job.PNG = result.PNG
		}
		result.DWG = nil
		result.PNG = nil
		job.Result = result
	}

	msg := terminalMessage(success, result)
	job.Messages = append(job.Messages, msg)
	s.hub.publish(id, msg)
}

func terminalMessage(success bool, result *Result) ProgressMessage {
	now := time.Now()
	if success {
		return ProgressMessage{
			Phase:     PhaseComplete,
			Message:   "Generation complete",
			Timestamp: now,
		}
	}
	msg := ProgressMessage{
		Phase:     PhaseError,
		Message:   "Generation failed",
		Timestamp: now,
	}
	if result != nil && len(result.Errors) > 0 {
		msg.Detail = strings.Join(result.Errors, "; ")
	}
	return msg
}

// Get returns a snapshot of the job, or nil when the id is unknown or
// already expired. The message slice is copied; artifact buffers are shared
// but written once at completion.
func (s *Store) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	snap := *job
	snap.Messages = append([]ProgressMessage(nil), job.Messages...)
	return &snap
}

// Subscribe atomically snapshots the job's backlog and registers a live
// listener, so a subscriber sees every message exactly once and in order.
// For already-terminal jobs the channel is nil: the backlog ends with the
// terminal event and there is nothing left to wait for. ok is false when
// the job does not exist.
func (s *Store) Subscribe(id string) (backlog []ProgressMessage, live <-chan ProgressMessage, cancel func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, nil, nil, false
	}
	backlog = append([]ProgressMessage(nil), job.Messages...)
	if job.Status != StatusRunning {
		return backlog, nil, func() {}, true
	}
	live, cancel = s.hub.subscribe(id)
	return backlog, live, cancel, true
}

func (s *Store) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.expire(now)
		}
	}
}

func (s *Store) expire(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.Status == StatusRunning {
			continue
		}
		if now.Sub(job.CompletedAt) >= s.ttl {
			delete(s.jobs, id)
			s.logger.Debug().Str("job_id", id).Msg("expired job removed")
		}
	}
}
