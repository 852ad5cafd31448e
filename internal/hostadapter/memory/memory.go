// Package memory provides an in-process HostAdapter fake used by unit
// tests and cmd/shaded's dry-run mode (-host=memory). Every call_service invocation is
// recorded so scenario tests can assert on it.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tobiasrehn/shadeflow/internal/hostadapter"
)

// ServiceCall records one CallService invocation.
type ServiceCall struct {
	Domain   string
	Service  string
	EntityID string
	Args     map[string]any
	At       time.Time
}

// Adapter is the in-memory HostAdapter fake.
type Adapter struct {
	mu sync.Mutex

	states  map[string]hostadapter.StateValue
	clock   time.Time
	appDir  string
	calls   []ServiceCall
	fail    map[string]bool // entity -> force CallService failure

	stateHandlers map[string][]hostadapter.StateHandler
	eventHandlers map[string][]hostadapter.EventHandler
}

// New creates an Adapter seeded with the given wall-clock time.
func New(now time.Time) *Adapter {
	return &Adapter{
		states:        make(map[string]hostadapter.StateValue),
		clock:         now,
		appDir:        "/tmp/shadeflow-test",
		fail:          make(map[string]bool),
		stateHandlers: make(map[string][]hostadapter.StateHandler),
		eventHandlers: make(map[string][]hostadapter.EventHandler),
	}
}

// SetStateValue seeds or updates an entity's state without notifying
// listeners (use Emit for that).
func (a *Adapter) SetStateValue(entity string, v hostadapter.StateValue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states[entity] = v
}

// Emit updates an entity's state and notifies subscribed handlers.
func (a *Adapter) Emit(ctx context.Context, entity string, v hostadapter.StateValue) {
	a.mu.Lock()
	old := a.states[entity]
	a.states[entity] = v
	handlers := append([]hostadapter.StateHandler(nil), a.stateHandlers[entity]...)
	a.mu.Unlock()

	for _, h := range handlers {
		h(ctx, entity, old, v)
	}
}

// SetClock advances the fake wall clock.
func (a *Adapter) SetClock(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clock = t
}

// FailNextCalls forces CallService to fail for the given entity.
func (a *Adapter) FailNextCalls(entity string, fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fail[entity] = fail
}

// Calls returns every recorded service call, in order.
func (a *Adapter) Calls() []ServiceCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ServiceCall(nil), a.calls...)
}

func (a *Adapter) GetState(ctx context.Context, entity string) (hostadapter.StateValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.states[entity]
	if !ok {
		return hostadapter.StateValue{Valid: false}, nil
	}
	return v, nil
}

func (a *Adapter) SetState(ctx context.Context, entity, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states[entity] = hostadapter.StateValue{State: value, Valid: true}
	return nil
}

func (a *Adapter) CallService(ctx context.Context, domain, service, entityID string, args map[string]any) (hostadapter.ServiceResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, ServiceCall{Domain: domain, Service: service, EntityID: entityID, Args: args, At: a.clock})
	shouldFail := a.fail[entityID]
	a.mu.Unlock()

	if shouldFail {
		return hostadapter.ServiceResult{Success: false}, nil
	}
	return hostadapter.ServiceResult{Success: true}, nil
}

func (a *Adapter) ListenState(entity string, handler hostadapter.StateHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stateHandlers[entity] = append(a.stateHandlers[entity], handler)
}

func (a *Adapter) ListenEvent(eventName string, handler hostadapter.EventHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.eventHandlers[eventName] = append(a.eventHandlers[eventName], handler)
}

func (a *Adapter) RunEvery(handler hostadapter.TickHandler, start time.Time, interval time.Duration) {
	// The fake does not run a real scheduler; tests drive ticks explicitly
	// by calling the controller directly.
}

func (a *Adapter) Now() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clock
}

func (a *Adapter) AppDir() string {
	return a.appDir
}

var _ hostadapter.HostAdapter = (*Adapter)(nil)
