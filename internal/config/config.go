// Package config loads the flat key=value settings file that drives every
// opsctl command. All deployment parameters live in the file; commands take
// no positional configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Access controls who may invoke the deployed function.
type Access string

const (
	// AccessPublic grants the unauthenticated allUsers principal the
	// invoker role.
	AccessPublic Access = "public"
	// AccessIAMOnly leaves invocation restricted to IAM principals.
	AccessIAMOnly Access = "iam-only"
)

// DefaultPath is where commands look for settings when --config is not given.
const DefaultPath = "function.conf"

// Defaults for optional keys.
const (
	DefaultSourceDir = "./function"
	DefaultMemory    = "256Mi"
	DefaultTimeout   = 60 * time.Second
)

// requiredKeys must all be present and non-empty; Load fails naming the
// first one that is missing.
var requiredKeys = []string{"name", "region", "runtime", "entry_point", "project"}

// Settings is the typed view of the config file.
type Settings struct {
	// Name of the cloud function.
	Name string
	// Region the function is deployed to, e.g. "us-central1".
	Region string
	// Project is the cloud project that owns the function.
	Project string
	// Runtime identifier, e.g. "python312".
	Runtime string
	// EntryPoint is the handler symbol inside the source package.
	EntryPoint string
	// SourceDir holds the function source tree to package and upload.
	SourceDir string
	// Access derived from allow_unauthenticated.
	Access Access
	// Memory granted to each instance, as a quantity string the platform
	// accepts ("256Mi", "512M", "1Gi").
	Memory string
	// Timeout for a single request.
	Timeout time.Duration
}

// MissingKeyError reports a required key that is absent or empty.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("config: required key %q is not set", e.Key)
}

// File is a loaded settings file with raw key access. Settings is built on
// top of it; commands that need ad-hoc keys can use Get directly.
type File struct {
	section *ini.Section
}

// LoadFile parses the file at path. Comments use '#' or ';'. Keys live in
// the implicit root section; when a key repeats, the first occurrence wins.
func LoadFile(path string) (*File, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return &File{section: f.Section(ini.DefaultSection)}, nil
}

// Get returns the trimmed value for key, or def when the key is absent or
// blank.
func (f *File) Get(key, def string) string {
	if !f.section.HasKey(key) {
		return def
	}
	v := strings.TrimSpace(f.section.Key(key).String())
	if v == "" {
		return def
	}
	return v
}

// require returns the trimmed value for key or a MissingKeyError.
func (f *File) require(key string) (string, error) {
	v := f.Get(key, "")
	if v == "" {
		return "", &MissingKeyError{Key: key}
	}
	return v, nil
}

// Load reads and validates the settings file at path.
func Load(path string) (*Settings, error) {
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return f.Settings()
}

// Settings builds the typed settings from the raw file, validating required
// keys and derived fields.
func (f *File) Settings() (*Settings, error) {
	s := &Settings{}
	for _, key := range requiredKeys {
		v, err := f.require(key)
		if err != nil {
			return nil, err
		}
		switch key {
		case "name":
			s.Name = v
		case "region":
			s.Region = v
		case "runtime":
			s.Runtime = v
		case "entry_point":
			s.EntryPoint = v
		case "project":
			s.Project = v
		}
	}

	s.SourceDir = f.Get("source_dir", DefaultSourceDir)
	s.Access = DeriveAccess(f.Get("allow_unauthenticated", "false"))

	s.Memory = f.Get("memory", DefaultMemory)
	if _, err := resource.ParseQuantity(s.Memory); err != nil {
		return nil, fmt.Errorf("config: memory %q is not a valid quantity: %w", s.Memory, err)
	}

	timeout := f.Get("timeout", "")
	if timeout == "" {
		s.Timeout = DefaultTimeout
	} else {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("config: timeout %q is not a valid duration: %w", timeout, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("config: timeout %q must be positive", timeout)
		}
		s.Timeout = d
	}

	return s, nil
}

// DeriveAccess maps the allow_unauthenticated value to an access policy.
// Only the literal "true" opens the function to unauthenticated callers;
// every other value keeps it IAM-only.
func DeriveAccess(allowUnauthenticated string) Access {
	if strings.TrimSpace(allowUnauthenticated) == "true" {
		return AccessPublic
	}
	return AccessIAMOnly
}

// FunctionResource returns the fully qualified resource name of the function.
func (s *Settings) FunctionResource() string {
	return fmt.Sprintf("%s/functions/%s", s.LocationResource(), s.Name)
}

// LocationResource returns the fully qualified parent location name.
func (s *Settings) LocationResource() string {
	return fmt.Sprintf("projects/%s/locations/%s", s.Project, s.Region)
}
