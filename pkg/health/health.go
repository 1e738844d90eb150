// Package health serves liveness and readiness probes.
//
// Checks run in background goroutines and flip state only after a number of
// consecutive results, so a single slow ping does not take the service out
// of rotation. A check that is not critical is reported as degraded instead
// of failing its probe: the payment provider being down must not stop the
// webhook and verify routes from serving the locally known state.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Probe selects the endpoint a check contributes to.
type Probe uint8

const (
	Liveness Probe = iota
	Readiness
)

func (p Probe) String() string {
	if p == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Check describes a registered check.
type Check struct {
	Name     string
	Probe    Probe
	Timeout  time.Duration
	Critical bool
	Func     CheckFunc
	// FailureThreshold consecutive errors mark the check unhealthy.
	// Defaults to 3.
	FailureThreshold int
	// SuccessThreshold consecutive passes mark it healthy again.
	// Defaults to 1.
	SuccessThreshold int
}

// state is written only by the check goroutine. healthy and lastErr are
// also read by the endpoints.
type state struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (s *state) err() error {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once and returns true when health flipped.
func (s *state) run(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	err := s.Func(checkCtx)
	s.lastErr.Store(&err)

	was := s.healthy.Load()
	if err != nil {
		s.oks = 0
		s.fails++
		if s.fails >= s.FailureThreshold {
			s.healthy.Store(false)
		}
	} else {
		s.fails = 0
		s.oks++
		if s.oks >= s.SuccessThreshold {
			s.healthy.Store(true)
		}
	}
	return was != s.healthy.Load()
}

// Health tracks the checks of one process.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*state
	cancel context.CancelFunc
}

// New creates a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Register adds a check. Checks start healthy.
func (h *Health) Register(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	s := &state{Check: c}
	s.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, s)
	h.mu.Unlock()
}

// Start runs every registered check at interval until Stop or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append([]*state(nil), h.checks...)
	h.mu.Unlock()

	for _, s := range checks {
		go loop(ctx, s, interval)
	}
}

func loop(ctx context.Context, s *state, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if s.run(ctx) {
			lg := zctx.From(ctx).With(
				zap.String("check", s.Name),
				zap.Stringer("probe", s.Probe),
				zap.Bool("critical", s.Critical),
			)
			if s.healthy.Load() {
				lg.Info("Check recovered")
			} else {
				lg.Warn("Check failing", zap.Error(s.err()))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the check goroutines. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness flag, cleared during shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Status summarizes a probe.
type Status string

const (
	StatusOK        Status = "ok"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Result is the last known state of one check.
type Result struct {
	Name     string
	Healthy  bool
	Critical bool
	Error    string
}

// Report is the state of a probe.
type Report struct {
	Status Status
	Checks []Result
}

// Report evaluates the probe from the stored check results.
func (h *Health) Report(p Probe) Report {
	h.mu.RLock()
	checks := append([]*state(nil), h.checks...)
	h.mu.RUnlock()

	r := Report{Status: StatusOK}
	for _, s := range checks {
		if s.Probe != p {
			continue
		}
		res := Result{Name: s.Name, Healthy: s.healthy.Load(), Critical: s.Critical}
		if !res.Healthy {
			res.Error = "check is unhealthy"
			if err := s.err(); err != nil {
				res.Error = err.Error()
			}
			switch {
			case s.Critical:
				r.Status = StatusUnhealthy
			case r.Status == StatusOK:
				r.Status = StatusDegraded
			}
		}
		r.Checks = append(r.Checks, res)
	}
	if p == Readiness && !h.ready.Load() {
		r.Status = StatusUnhealthy
		r.Checks = append(r.Checks, Result{Name: "_readiness", Critical: true, Error: "service is not ready"})
	}
	sort.Slice(r.Checks, func(i, j int) bool { return r.Checks[i].Name < r.Checks[j].Name })
	return r
}

// IsReady reports whether the readiness probe passes.
func (h *Health) IsReady() bool {
	return h.Report(Readiness).Status != StatusUnhealthy
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.Report(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.Report(Readiness))
}

// Encode writes r as JSON. Only checks that are not healthy are listed.
func (r Report) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("status")
	e.Str(string(r.Status))
	failing := false
	for _, c := range r.Checks {
		if c.Healthy {
			continue
		}
		if !failing {
			e.FieldStart("checks")
			e.ObjStart()
			failing = true
		}
		e.FieldStart(c.Name)
		e.ObjStart()
		e.FieldStart("critical")
		e.Bool(c.Critical)
		e.FieldStart("error")
		e.Str(c.Error)
		e.ObjEnd()
	}
	if failing {
		e.ObjEnd()
	}
	e.ObjEnd()
}

func writeReport(w http.ResponseWriter, r Report) {
	var e jx.Encoder
	r.Encode(&e)

	code := http.StatusOK
	if r.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
