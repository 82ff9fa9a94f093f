// Package health aggregates component checks into a single readiness report.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates that the component is healthy
	StatusUp Status = "up"
	// StatusDown indicates that the component is unhealthy
	StatusDown Status = "down"
	// StatusDegraded indicates that the component works with reduced function
	StatusDegraded Status = "degraded"
)

// CheckFunc reports the current status of one component.
type CheckFunc func(ctx context.Context) (Status, error)

// Component is the last observed result of a check.
type Component struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Report is the aggregated view served over HTTP.
type Report struct {
	Status     Status      `json:"status"`
	Components []Component `json:"components"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Checker runs registered checks and keeps their latest results.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	checks     map[string]CheckFunc
	updatedAt  time.Time
	timeout    time.Duration
	now        func() time.Time
}

// NewChecker creates a checker whose individual runs time out after timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		components: make(map[string]*Component),
		checks:     make(map[string]CheckFunc),
		timeout:    timeout,
		now:        time.Now,
	}
}

// Register adds a component. It reports down until its first check runs.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = &Component{Name: name, Status: StatusDown}
	c.checks[name] = check
}

// Run checks every period until ctx is done.
func (c *Checker) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	c.CheckNow(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckNow(ctx)
		}
	}
}

// CheckNow runs every check in parallel and records the results.
func (c *Checker) CheckNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	var (
		resultsMu sync.Mutex
		results   = make(map[string]Component, len(checks))
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, check := range checks {
		name, check := name, check
		g.Go(func() error {
			status, err := check(gctx)
			result := Component{Name: name, Status: status}
			if err != nil {
				result.Error = err.Error()
				if status == "" || status == StatusUp {
					result.Status = StatusDown
				}
			}

			resultsMu.Lock()
			results[name] = result
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, result := range results {
		// Components unregistered during the run are skipped.
		if component, ok := c.components[name]; ok {
			*component = result
		}
	}
	c.updatedAt = c.now()
}

// Component returns the last result for name.
func (c *Checker) Component(name string) (Component, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	component, ok := c.components[name]
	if !ok {
		return Component{}, fmt.Errorf("component not found: %s", name)
	}
	return *component, nil
}

// Report returns all components sorted by name and the overall status.
func (c *Checker) Report() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	report := Report{
		Status:     overall(c.components),
		Components: make([]Component, 0, len(c.components)),
		UpdatedAt:  c.updatedAt,
	}
	for _, component := range c.components {
		report.Components = append(report.Components, *component)
	}
	sort.Slice(report.Components, func(i, j int) bool {
		return report.Components[i].Name < report.Components[j].Name
	})
	return report
}

// overall is down with no components or when every component is down,
// degraded when some are, and up otherwise.
func overall(components map[string]*Component) Status {
	if len(components) == 0 {
		return StatusDown
	}
	down, degraded := 0, 0
	for _, component := range components {
		switch component.Status {
		case StatusDown:
			down++
		case StatusDegraded:
			degraded++
		}
	}
	switch {
	case down == len(components):
		return StatusDown
	case down > 0 || degraded > 0:
		return StatusDegraded
	default:
		return StatusUp
	}
}

// HTTPHandler serves the report as JSON, or the bare status with
// ?format=simple. A single component is selected with ?component=name.
// Overall status down answers 503.
func (c *Checker) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if name := r.URL.Query().Get("component"); name != "" {
			component, err := c.Component(name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(component)
			return
		}

		report := c.Report()
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}

		if r.URL.Query().Get("format") == "simple" {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(code)
			fmt.Fprint(w, report.Status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
}

// HTTPCheck reports down when url does not answer with a 2xx or 3xx status.
func HTTPCheck(client *http.Client, url string) CheckFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (Status, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return StatusDown, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return StatusDown, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 400 {
			return StatusDown, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return StatusUp, nil
	}
}

// Bool adapts a predicate into a check that is up when ok returns true.
func Bool(ok func() bool, downErr error) CheckFunc {
	return func(context.Context) (Status, error) {
		if ok() {
			return StatusUp, nil
		}
		return StatusDown, downErr
	}
}
