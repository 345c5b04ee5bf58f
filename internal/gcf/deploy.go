package gcf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	cloudfunctions "google.golang.org/api/cloudfunctions/v2"

	"github.com/customerapi/opsctl/internal/config"
)

// invokerRole is granted to allUsers when the function is public.
const invokerRole = "roles/cloudfunctions.invoker"

// DeployResult reports what a deploy did.
type DeployResult struct {
	// Created is true when the function was created rather than updated.
	Created bool
	// URL of the deployed endpoint.
	URL string
}

// Deploy uploads the packaged source and creates or updates the function,
// waiting for the rollout to finish. On success the endpoint URL is
// returned. When settings allow unauthenticated access the invoker role is
// bound to allUsers after the rollout.
func (c *Client) Deploy(ctx context.Context, s *config.Settings, archive []byte) (*DeployResult, error) {
	storage, err := c.uploadSource(ctx, s, archive)
	if err != nil {
		return nil, err
	}

	fn := &cloudfunctions.Function{
		Name:        s.FunctionResource(),
		Environment: "GEN_2",
		BuildConfig: &cloudfunctions.BuildConfig{
			Runtime:    s.Runtime,
			EntryPoint: s.EntryPoint,
			Source: &cloudfunctions.Source{
				StorageSource: storage,
			},
		},
		ServiceConfig: &cloudfunctions.ServiceConfig{
			AvailableMemory: s.Memory,
			TimeoutSeconds:  int64(s.Timeout.Seconds()),
			IngressSettings: "ALLOW_ALL",
		},
	}

	created, err := c.applyFunction(ctx, s, fn)
	if err != nil {
		return nil, err
	}

	if s.Access == config.AccessPublic {
		if err := c.allowUnauthenticated(ctx, s); err != nil {
			return nil, err
		}
	}

	info, err := c.Describe(ctx, s)
	if err != nil {
		return nil, err
	}
	if info.URL == "" {
		return nil, fmt.Errorf("gcf: %s deployed but has no endpoint URL", s.Name)
	}
	return &DeployResult{Created: created, URL: info.URL}, nil
}

// uploadSource obtains a signed upload URL, PUTs the archive to it and
// returns the storage location to reference from the function's build
// config.
func (c *Client) uploadSource(ctx context.Context, s *config.Settings, archive []byte) (*cloudfunctions.StorageSource, error) {
	resp, err := c.svc.Projects.Locations.Functions.
		GenerateUploadUrl(s.LocationResource(), &cloudfunctions.GenerateUploadUrlRequest{}).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gcf: generating upload URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, resp.UploadUrl, bytes.NewReader(archive))
	if err != nil {
		return nil, fmt.Errorf("gcf: building upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/zip")
	req.ContentLength = int64(len(archive))

	res, err := c.Uploader.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gcf: uploading source: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("gcf: source upload returned %s", res.Status)
	}

	slog.Info("source uploaded", "function", s.Name, "bytes", len(archive))
	return resp.StorageSource, nil
}

// applyFunction creates the function, or patches it when it already exists.
// Returns whether a create happened.
func (c *Client) applyFunction(ctx context.Context, s *config.Settings, fn *cloudfunctions.Function) (bool, error) {
	functions := c.svc.Projects.Locations.Functions

	_, err := functions.Get(s.FunctionResource()).Context(ctx).Do()
	switch {
	case isNotFound(err):
		op, err := functions.Create(s.LocationResource(), fn).FunctionId(s.Name).Context(ctx).Do()
		if err != nil {
			return false, fmt.Errorf("gcf: creating %s: %w", s.Name, err)
		}
		slog.Info("create requested", "function", s.Name, "operation", op.Name)
		if err := c.waitOperation(ctx, op); err != nil {
			return false, fmt.Errorf("gcf: creating %s: %w", s.Name, err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("gcf: checking %s: %w", s.Name, err)
	}

	op, err := functions.Patch(s.FunctionResource(), fn).
		UpdateMask("buildConfig,serviceConfig").
		Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("gcf: updating %s: %w", s.Name, err)
	}
	slog.Info("update requested", "function", s.Name, "operation", op.Name)
	if err := c.waitOperation(ctx, op); err != nil {
		return false, fmt.Errorf("gcf: updating %s: %w", s.Name, err)
	}
	return false, nil
}

// allowUnauthenticated binds the invoker role to allUsers.
func (c *Client) allowUnauthenticated(ctx context.Context, s *config.Settings) error {
	req := &cloudfunctions.SetIamPolicyRequest{
		Policy: &cloudfunctions.Policy{
			Bindings: []*cloudfunctions.Binding{{
				Role:    invokerRole,
				Members: []string{"allUsers"},
			}},
		},
	}
	_, err := c.svc.Projects.Locations.Functions.
		SetIamPolicy(s.FunctionResource(), req).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gcf: opening %s to unauthenticated callers: %w", s.Name, err)
	}
	slog.Info("invoker role bound", "function", s.Name, "member", "allUsers")
	return nil
}
