// Package gcf wraps the Cloud Functions v2 management API for the small set
// of operations the CLI needs: deploy, teardown and describe.
package gcf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	cloudfunctions "google.golang.org/api/cloudfunctions/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/customerapi/opsctl/internal/config"
)

// ErrNotFound is returned by Describe when the function does not exist.
var ErrNotFound = errors.New("function not found")

// Client talks to the Cloud Functions v2 API.
type Client struct {
	svc *cloudfunctions.Service

	// Uploader performs the source archive PUT to the signed upload URL.
	Uploader *http.Client

	// PollInterval between long-running operation status checks.
	PollInterval time.Duration
}

// NewClient builds a client with application default credentials. Extra
// options (endpoint override, explicit credentials) are passed through to
// the underlying service, which tests use to point at a fake API.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := cloudfunctions.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcf: creating service client: %w", err)
	}
	return &Client{
		svc:          svc,
		Uploader:     http.DefaultClient,
		PollInterval: 2 * time.Second,
	}, nil
}

// FunctionInfo is the subset of function state the CLI reports.
type FunctionInfo struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Runtime    string `json:"runtime"`
	URL        string `json:"url"`
	UpdateTime string `json:"update_time,omitempty"`
}

// Describe fetches the deployed function's state and endpoint URL.
func (c *Client) Describe(ctx context.Context, s *config.Settings) (*FunctionInfo, error) {
	fn, err := c.svc.Projects.Locations.Functions.Get(s.FunctionResource()).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("gcf: %s: %w", s.Name, ErrNotFound)
		}
		return nil, fmt.Errorf("gcf: describing %s: %w", s.Name, err)
	}
	return functionInfo(fn), nil
}

// Delete tears the function down and waits for the operation to finish.
func (c *Client) Delete(ctx context.Context, s *config.Settings) error {
	op, err := c.svc.Projects.Locations.Functions.Delete(s.FunctionResource()).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("gcf: %s: %w", s.Name, ErrNotFound)
		}
		return fmt.Errorf("gcf: deleting %s: %w", s.Name, err)
	}
	slog.Info("delete requested", "function", s.Name, "operation", op.Name)
	if err := c.waitOperation(ctx, op); err != nil {
		return fmt.Errorf("gcf: deleting %s: %w", s.Name, err)
	}
	return nil
}

// waitOperation polls a long-running operation until it completes, the
// operation reports an error, or ctx is cancelled.
func (c *Client) waitOperation(ctx context.Context, op *cloudfunctions.Operation) error {
	for {
		if op.Done {
			if op.Error != nil {
				return fmt.Errorf("operation %s failed: %s", op.Name, op.Error.Message)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.PollInterval):
		}
		var err error
		op, err = c.svc.Projects.Locations.Operations.Get(op.Name).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("polling operation: %w", err)
		}
	}
}

func functionInfo(fn *cloudfunctions.Function) *FunctionInfo {
	info := &FunctionInfo{
		Name:       fn.Name,
		State:      fn.State,
		URL:        fn.Url,
		UpdateTime: fn.UpdateTime,
	}
	if fn.BuildConfig != nil {
		info.Runtime = fn.BuildConfig.Runtime
	}
	if info.URL == "" && fn.ServiceConfig != nil {
		info.URL = fn.ServiceConfig.Uri
	}
	return info
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
