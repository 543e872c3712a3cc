package queue

import (
	"sync"

	"vividflow/internal/infra"
)

// AdmissionController gates how many jobs may be processing at once:
// at most globalLimit across the process and at most one per user. Its
// ledger lives only in memory; after a restart it starts empty and only
// ever reflects jobs this process has itself admitted.
type AdmissionController struct {
	mu          sync.Mutex
	globalLimit int
	activeCount int
	// user id -> the single job id that user currently occupies
	activeUserJobs map[string]string
	logger         infra.Logger
}

// AdmissionStatus is a read-only snapshot for observability.
type AdmissionStatus struct {
	GlobalActive int               `json:"global_active"`
	GlobalLimit  int               `json:"global_limit"`
	ActiveUsers  map[string]string `json:"active_users"`
}

// NewAdmissionController creates a controller with the given global limit.
func NewAdmissionController(globalLimit int, logger infra.Logger) *AdmissionController {
	if globalLimit < 1 {
		globalLimit = 1
	}
	return &AdmissionController{
		globalLimit:    globalLimit,
		activeUserJobs: make(map[string]string),
		logger:         logger,
	}
}

// TryAcquire attempts to claim a slot for the job. It denies when the user
// already occupies a slot (whatever the job) or the global limit is
// saturated. Check and mutation happen under one lock so two concurrent
// callers can never both pass the check. Denial is a normal return value,
// never an error.
func (c *AdmissionController) TryAcquire(userID, jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.activeUserJobs[userID]; busy {
		return false
	}
	if c.activeCount >= c.globalLimit {
		return false
	}

	c.activeCount++
	c.activeUserJobs[userID] = jobID
	return true
}

// Release frees the user's slot, but only if the recorded job matches
// jobID. A mismatch means the slot was already released or reassigned; that
// is a logged no-op, not an error.
func (c *AdmissionController) Release(userID, jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, ok := c.activeUserJobs[userID]
	if !ok || held != jobID {
		c.logger.Warn().
			Str("user_id", userID).
			Str("job_id", jobID).
			Str("held_job_id", held).
			Msg("admission: stale release ignored")
		return
	}

	delete(c.activeUserJobs, userID)
	c.activeCount--
	if c.activeCount < 0 {
		// Unreachable given the match check above.
		c.activeCount = 0
	}
}

// Status returns a snapshot of the ledger.
func (c *AdmissionController) Status() AdmissionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	users := make(map[string]string, len(c.activeUserJobs))
	for u, j := range c.activeUserJobs {
		users[u] = j
	}
	return AdmissionStatus{
		GlobalActive: c.activeCount,
		GlobalLimit:  c.globalLimit,
		ActiveUsers:  users,
	}
}
