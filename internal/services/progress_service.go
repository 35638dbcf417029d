// internal/services/progress_service.go
package services

import (
	"sync"
	"time"
)

// Task states reported to progress subscribers.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ProgressUpdate is one event pushed to subscribers.
type ProgressUpdate struct {
	TaskID   string `json:"task_id"`
	Progress int    `json:"progress"` // 0-100
	Message  string `json:"message"`
	Status   string `json:"status"`
}

// ProgressTracker follows one long-running generation task.
type ProgressTracker struct {
	TaskID      string
	Progress    int
	Message     string
	Status      string
	StartTime   time.Time
	UpdateTime  time.Time
	Subscribers map[chan ProgressUpdate]bool
	Done        chan struct{}

	mutex    sync.Mutex
	doneOnce sync.Once
	cancel   func()
}

// ProgressService owns every tracker of the process.
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// CreateTracker returns the tracker for taskID, creating it if needed.
func (s *ProgressService) CreateTracker(taskID string) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if tracker, exists := s.trackers[taskID]; exists {
		return tracker
	}

	now := time.Now()
	tracker := &ProgressTracker{
		TaskID:      taskID,
		Message:     "Initialisation...",
		Status:      StatusRunning,
		StartTime:   now,
		UpdateTime:  now,
		Subscribers: make(map[chan ProgressUpdate]bool),
		Done:        make(chan struct{}),
	}
	s.trackers[taskID] = tracker
	return tracker
}

func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[taskID]
	return tracker, exists
}

// ActiveCount is the number of running tasks.
func (s *ProgressService) ActiveCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	n := 0
	for _, t := range s.trackers {
		if t.Snapshot().Status == StatusRunning {
			n++
		}
	}
	return n
}

// CleanupCompletedTasks forgets finished trackers older than maxAge and
// returns their ids.
func (s *ProgressService) CleanupCompletedTasks(maxAge time.Duration) []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var removed []string
	now := time.Now()
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		finished := tracker.Status == StatusCompleted || tracker.Status == StatusFailed
		old := now.Sub(tracker.UpdateTime) > maxAge
		tracker.mutex.Unlock()

		if finished && old {
			delete(s.trackers, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// SetCancel registers the function Cancel calls.
func (t *ProgressTracker) SetCancel(cancel func()) {
	t.mutex.Lock()
	t.cancel = cancel
	t.mutex.Unlock()
}

// UpdateProgress moves the task forward. Progress never goes back.
func (t *ProgressTracker) UpdateProgress(progress int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != StatusRunning {
		return
	}
	if progress > 100 {
		progress = 100
	}
	if progress > t.Progress {
		t.Progress = progress
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()
	t.broadcast()
}

func (t *ProgressTracker) Complete(message string) {
	t.finish(StatusCompleted, message, "Terminé")
}

func (t *ProgressTracker) Fail(errorMsg string) {
	t.finish(StatusFailed, errorMsg, "Échec")
}

// Cancel stops the running task and marks it failed.
func (t *ProgressTracker) Cancel() bool {
	t.mutex.Lock()
	running := t.Status == StatusRunning
	cancel := t.cancel
	t.mutex.Unlock()

	if !running {
		return false
	}
	if cancel != nil {
		cancel()
	}
	t.Fail("Tâche annulée")
	return true
}

func (t *ProgressTracker) finish(status, message, fallback string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != StatusRunning {
		return
	}
	if message == "" {
		message = fallback
	}
	if status == StatusCompleted {
		t.Progress = 100
	}
	t.Message = message
	t.Status = status
	t.UpdateTime = time.Now()
	t.broadcastFinal()

	t.doneOnce.Do(func() { close(t.Done) })
}

// broadcast sends the current state without blocking. Caller holds the lock.
func (t *ProgressTracker) broadcast() {
	update := t.snapshotLocked()
	for subscriber := range t.Subscribers {
		select {
		case subscriber <- update:
		default:
		}
	}
}

// broadcastFinal makes room for the terminal state in full subscriber
// buffers by dropping their oldest pending update. Caller holds the lock.
func (t *ProgressTracker) broadcastFinal() {
	update := t.snapshotLocked()
	for subscriber := range t.Subscribers {
		select {
		case subscriber <- update:
			continue
		default:
		}
		select {
		case <-subscriber:
		default:
		}
		select {
		case subscriber <- update:
		default:
		}
	}
}

func (t *ProgressTracker) snapshotLocked() ProgressUpdate {
	return ProgressUpdate{
		TaskID:   t.TaskID,
		Progress: t.Progress,
		Message:  t.Message,
		Status:   t.Status,
	}
}

// Snapshot returns the current state.
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.snapshotLocked()
}

// Subscribe returns a channel that first receives the current state.
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	subscriber := make(chan ProgressUpdate, 10)
	t.Subscribers[subscriber] = true
	subscriber <- t.snapshotLocked()
	return subscriber
}

func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.Subscribers[subscriber]; !ok {
		return
	}
	delete(t.Subscribers, subscriber)
	close(subscriber)
}
