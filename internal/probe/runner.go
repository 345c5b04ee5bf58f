package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	resty "resty.dev/v3"
)

// Result is the outcome of one probe.
type Result struct {
	Probe  Probe
	Status int
	Err    error
}

// Passed reports whether the probe met its expectations.
func (r *Result) Passed() bool {
	return r.Err == nil
}

// Summary accumulates probe outcomes for a run.
type Summary struct {
	Results []Result
	Passed  int
	Failed  int
}

// OK reports whether every probe passed.
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// Runner executes a plan sequentially against one base URL. A failed probe
// is recorded and the run continues; only the summary decides the overall
// outcome.
type Runner struct {
	client *resty.Client
}

// NewRunner builds a runner for the endpoint at baseURL. Probes share one
// client with the given per-request timeout; there are no retries, a
// probe's failure is a result rather than a transient error.
func NewRunner(baseURL string, timeout time.Duration) *Runner {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &Runner{client: client}
}

// Close releases the underlying HTTP client.
func (r *Runner) Close() error {
	return r.client.Close()
}

// Run executes every probe in order and returns the accumulated summary.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*Summary, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	summary := &Summary{}
	captures := map[string]string{}

	for _, p := range plan.Probes {
		res := r.execute(ctx, p, captures)
		if res.Passed() {
			summary.Passed++
			slog.Debug("probe passed", "probe", p.Name, "status", res.Status)
		} else {
			summary.Failed++
			slog.Warn("probe failed", "probe", p.Name, "error", res.Err)
		}
		summary.Results = append(summary.Results, res)
	}
	return summary, nil
}

// execute runs a single probe, updating captures on success.
func (r *Runner) execute(ctx context.Context, p Probe, captures map[string]string) Result {
	res := Result{Probe: p}

	path, err := interpolate(p.Path, captures)
	if err != nil {
		res.Err = err
		return res
	}
	req := r.client.R().SetContext(ctx)
	for k, v := range p.Query {
		value, err := interpolate(v, captures)
		if err != nil {
			res.Err = err
			return res
		}
		req.SetQueryParam(k, value)
	}

	resp, err := req.Execute(p.Method, path)
	if err != nil {
		res.Err = fmt.Errorf("request failed: %w", err)
		return res
	}
	res.Status = resp.StatusCode()

	if res.Status != p.ExpectStatus {
		res.Err = fmt.Errorf("expected status %d, got %d", p.ExpectStatus, res.Status)
		return res
	}

	if p.ExpectJSONArray || p.CaptureFirstAs != "" {
		var elements []json.RawMessage
		if err := json.Unmarshal(resp.Bytes(), &elements); err != nil {
			res.Err = fmt.Errorf("body is not a JSON array: %w", err)
			return res
		}
		if len(elements) == 0 {
			res.Err = fmt.Errorf("expected a non-empty JSON array")
			return res
		}
		if p.CaptureFirstAs != "" {
			var first string
			if err := json.Unmarshal(elements[0], &first); err != nil {
				res.Err = fmt.Errorf("first array element is not a string: %w", err)
				return res
			}
			captures[p.CaptureFirstAs] = first
		}
	}
	return res
}

// interpolate substitutes {{name}} markers from captures, failing on any
// marker that has no captured value.
func interpolate(s string, captures map[string]string) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		v, ok := captures[name]
		if !ok {
			missing = name
			return m
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("no captured value for {{%s}}", missing)
	}
	return out, nil
}
