// Package health tracks per-component status, derives the capability map
// that gates the tool surface, and owns the degraded-mode registration
// queue.
//
// Components report transitions through [Registry.Update]; interested
// parties register callbacks that fire asynchronously on every status
// change, so a callback can never block the component that reported.
package health

import (
	"sync"
	"time"
)

// Status of a single component.
type Status string

const (
	Healthy     Status = "healthy"
	Degraded    Status = "degraded"
	Unavailable Status = "unavailable"
)

// rank orders statuses from best to worst for the overall aggregation.
func (s Status) rank() int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	default:
		return 2
	}
}

// Component names tracked by the registry.
const (
	ComponentFaceModel      = "face_model"
	ComponentVectorIndex    = "vector_index"
	ComponentTokenAuthority = "token_authority"
)

// State is the recorded condition of one component.
type State struct {
	Status      Status    `json:"status"`
	Message     string    `json:"message"`
	LastChecked time.Time `json:"last_checked"`
	Error       string    `json:"error,omitempty"`
}

// Capabilities derives what the system can currently do.
type Capabilities struct {
	CanRegister          bool `json:"can_register"`
	CanRecognize         bool `json:"can_recognize"`
	CanQueueRegistration bool `json:"can_queue_registration"`
}

// Snapshot is the externally visible health view.
type Snapshot struct {
	Overall      Status           `json:"overall"`
	Components   map[string]State `json:"components"`
	Capabilities Capabilities     `json:"capabilities"`
	QueuedCount  int              `json:"queued_count"`
}

// Change describes one component transition, delivered to callbacks.
type Change struct {
	Component string
	From      Status
	To        Status
}

// Callback receives component transitions. Invoked on its own goroutine.
type Callback func(Change)

// QueuedRegistration is a registration accepted while the vector index
// was degraded, waiting for the drain. The queue is in-memory only: a
// process restart loses it. The queued response reports only the queue
// position; the snapshot's queued_count shows a non-empty queue.
type QueuedRegistration struct {
	Timestamp time.Time
	Name      string
	Image     []byte
	Metadata  map[string]string
	ClientID  string
}

// Registry is the process-wide health state holder.
type Registry struct {
	mu        sync.Mutex
	states    map[string]State
	callbacks []Callback
	queue     []QueuedRegistration
}

// NewRegistry starts with every known component Unavailable, which is
// accurate until the owning subsystem reports in.
func NewRegistry() *Registry {
	now := time.Now().UTC()
	states := make(map[string]State)
	for _, c := range []string{ComponentFaceModel, ComponentVectorIndex, ComponentTokenAuthority} {
		states[c] = State{Status: Unavailable, Message: "not started", LastChecked: now}
	}
	return &Registry{states: states}
}

// Update records a component's status. If the status changed, registered
// callbacks run asynchronously.
func (r *Registry) Update(component string, status Status, message string, errMsg string) {
	r.mu.Lock()
	prev, known := r.states[component]
	r.states[component] = State{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC(),
		Error:       errMsg,
	}
	var cbs []Callback
	if !known || prev.Status != status {
		cbs = append(cbs, r.callbacks...)
	}
	r.mu.Unlock()

	if len(cbs) > 0 {
		ch := Change{Component: component, From: prev.Status, To: status}
		for _, cb := range cbs {
			go cb(ch)
		}
	}
}

// Status returns the current status of one component.
func (r *Registry) Status(component string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[component].Status
}

// OnChange registers a transition callback.
func (r *Registry) OnChange(cb Callback) {
	r.mu.Lock()
	r.callbacks = append(r.callbacks, cb)
	r.mu.Unlock()
}

// Snapshot returns the aggregated view.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	comps := make(map[string]State, len(r.states))
	overall := Healthy
	for name, st := range r.states {
		comps[name] = st
		if st.Status.rank() > overall.rank() {
			overall = st.Status
		}
	}
	return Snapshot{
		Overall:      overall,
		Components:   comps,
		Capabilities: r.capabilitiesLocked(),
		QueuedCount:  len(r.queue),
	}
}

// Capabilities returns just the capability map.
func (r *Registry) Capabilities() Capabilities {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capabilitiesLocked()
}

func (r *Registry) capabilitiesLocked() Capabilities {
	face := r.states[ComponentFaceModel].Status
	vec := r.states[ComponentVectorIndex].Status
	return Capabilities{
		CanRegister:          face == Healthy && (vec == Healthy || vec == Degraded),
		CanRecognize:         face == Healthy && vec == Healthy,
		CanQueueRegistration: face == Healthy && vec == Degraded,
	}
}

// Enqueue appends a registration to the degraded-mode queue and returns
// its 1-based position.
func (r *Registry) Enqueue(reg QueuedRegistration) int {
	if reg.Timestamp.IsZero() {
		reg.Timestamp = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, reg)
	return len(r.queue)
}

// Drain removes and returns all queued registrations in enqueue order.
func (r *Registry) Drain() []QueuedRegistration {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.queue
	r.queue = nil
	return q
}

// QueueLen returns the number of waiting registrations.
func (r *Registry) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// ClearQueue discards all queued registrations.
func (r *Registry) ClearQueue() {
	r.mu.Lock()
	r.queue = nil
	r.mu.Unlock()
}
