// Package probe defines and runs the black-box HTTP checks issued against
// the deployed function.
package probe

import (
	"fmt"
	"net/http"
	"os"
	"regexp"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Probe is a single HTTP request with an expected status code.
type Probe struct {
	Name   string            `yaml:"name"`
	Method string            `yaml:"method"`
	Path   string            `yaml:"path"`
	Query  map[string]string `yaml:"query,omitempty"`

	// ExpectStatus is the status code the endpoint must return.
	ExpectStatus int `yaml:"expect_status"`

	// ExpectJSONArray additionally requires the body to decode to a
	// non-empty JSON array.
	ExpectJSONArray bool `yaml:"expect_json_array,omitempty"`

	// CaptureFirstAs stores the array's first element (a string) under the
	// given name for later probes to interpolate with {{name}}. Implies
	// ExpectJSONArray.
	CaptureFirstAs string `yaml:"capture_first_as,omitempty"`
}

// Plan is an ordered list of probes.
type Plan struct {
	Probes []Probe `yaml:"probes"`
}

// placeholderPattern matches {{name}} interpolation markers.
var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// DefaultPlan returns the built-in probe table for the customer API. The
// not-found probe uses a freshly generated address so it can never collide
// with generated customer data.
func DefaultPlan() *Plan {
	nonexistent := "no-such-" + uuid.NewString() + "@example.com"
	return &Plan{Probes: []Probe{
		{Name: "root", Method: http.MethodGet, Path: "/", ExpectStatus: http.StatusOK},
		{Name: "all users", Method: http.MethodGet, Path: "/users", ExpectStatus: http.StatusOK},
		{
			Name:           "email list",
			Method:         http.MethodGet,
			Path:           "/list_emails",
			ExpectStatus:   http.StatusOK,
			CaptureFirstAs: "first_email",
		},
		{
			Name:         "user by known email",
			Method:       http.MethodGet,
			Path:         "/users",
			Query:        map[string]string{"email": "{{first_email}}"},
			ExpectStatus: http.StatusOK,
		},
		{
			Name:         "user by unknown email",
			Method:       http.MethodGet,
			Path:         "/users",
			Query:        map[string]string{"email": nonexistent},
			ExpectStatus: http.StatusNotFound,
		},
		{Name: "post rejected", Method: http.MethodPost, Path: "/users", ExpectStatus: http.StatusMethodNotAllowed},
		{Name: "unknown path", Method: http.MethodGet, Path: "/definitely/not/a/route", ExpectStatus: http.StatusNotFound},
	}}
}

// LoadPlan reads a YAML probe plan from path and validates it.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("probe: reading plan %s: %w", path, err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("probe: parsing plan %s: %w", path, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("probe: plan %s: %w", path, err)
	}
	return &plan, nil
}

// Validate checks the plan for structural problems: missing fields,
// duplicate names, and placeholders that no earlier probe captures.
func (p *Plan) Validate() error {
	if len(p.Probes) == 0 {
		return fmt.Errorf("plan has no probes")
	}
	seen := map[string]bool{}
	captured := map[string]bool{}
	for i, pr := range p.Probes {
		if pr.Name == "" {
			return fmt.Errorf("probe %d has no name", i)
		}
		if seen[pr.Name] {
			return fmt.Errorf("duplicate probe name %q", pr.Name)
		}
		seen[pr.Name] = true
		if pr.Method == "" {
			return fmt.Errorf("probe %q has no method", pr.Name)
		}
		if pr.Path == "" {
			return fmt.Errorf("probe %q has no path", pr.Name)
		}
		if pr.ExpectStatus < 100 || pr.ExpectStatus > 599 {
			return fmt.Errorf("probe %q has invalid expected status %d", pr.Name, pr.ExpectStatus)
		}
		for _, ref := range pr.placeholders() {
			if !captured[ref] {
				return fmt.Errorf("probe %q references {{%s}} before any probe captures it", pr.Name, ref)
			}
		}
		if pr.CaptureFirstAs != "" {
			captured[pr.CaptureFirstAs] = true
		}
	}
	return nil
}

// placeholders lists the capture names the probe's path and query reference.
func (p *Probe) placeholders() []string {
	var refs []string
	collect := func(s string) {
		for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
			refs = append(refs, m[1])
		}
	}
	collect(p.Path)
	for _, v := range p.Query {
		collect(v)
	}
	return refs
}
