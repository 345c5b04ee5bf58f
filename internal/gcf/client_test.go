package gcf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cloudfunctions "google.golang.org/api/cloudfunctions/v2"
	"google.golang.org/api/option"

	"github.com/customerapi/opsctl/internal/config"
)

func testSettings() *config.Settings {
	return &config.Settings{
		Name:       "customer-api",
		Region:     "us-central1",
		Project:    "demo-project",
		Runtime:    "python312",
		EntryPoint: "customer_api",
		Memory:     "256Mi",
		Timeout:    60 * time.Second,
		Access:     config.AccessIAMOnly,
	}
}

const (
	functionPath  = "/v2/projects/demo-project/locations/us-central1/functions/customer-api"
	functionsPath = "/v2/projects/demo-project/locations/us-central1/functions"
	operationPath = "/v2/projects/demo-project/locations/us-central1/operations/op-1"
	operationName = "projects/demo-project/locations/us-central1/operations/op-1"
)

// fakeAPI is an in-memory stand-in for the Cloud Functions v2 API surface
// the client touches.
type fakeAPI struct {
	mu sync.Mutex

	fn            *cloudfunctions.Function
	uploaded      []byte
	iamRequests   []*cloudfunctions.SetIamPolicyRequest
	rejectUploads bool
	// withoutURL deploys functions that never expose an endpoint URL,
	// as the API reports mid-rollout.
	withoutURL bool

	createCalls int
	patchCalls  int
	deleteCalls int

	// pendingPolls is how many Operations.Get calls return done=false
	// before the operation completes.
	pendingPolls int
	opError      *cloudfunctions.Status

	server *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+functionPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fn == nil {
			writeAPIError(w, http.StatusNotFound, "function not found")
			return
		}
		writeJSON(w, f.fn)
	})
	mux.HandleFunc("POST "+functionsPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.URL.Query().Get("functionId") != "customer-api" {
			writeAPIError(w, http.StatusBadRequest, "missing functionId")
			return
		}
		var fn cloudfunctions.Function
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fn))
		fn.Name = "projects/demo-project/locations/us-central1/functions/customer-api"
		fn.State = "ACTIVE"
		if !f.withoutURL {
			fn.ServiceConfig.Uri = "https://customer-api-abc123-uc.a.run.app"
		}
		f.fn = &fn
		f.createCalls++
		writeJSON(w, f.newOperation())
	})
	mux.HandleFunc("PATCH "+functionPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fn == nil {
			writeAPIError(w, http.StatusNotFound, "function not found")
			return
		}
		var fn cloudfunctions.Function
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fn))
		uri := f.fn.ServiceConfig.Uri
		fn.Name = f.fn.Name
		fn.State = "ACTIVE"
		fn.ServiceConfig.Uri = uri
		f.fn = &fn
		f.patchCalls++
		writeJSON(w, f.newOperation())
	})
	mux.HandleFunc("DELETE "+functionPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fn == nil {
			writeAPIError(w, http.StatusNotFound, "function not found")
			return
		}
		f.fn = nil
		f.deleteCalls++
		writeJSON(w, f.newOperation())
	})
	mux.HandleFunc("POST "+functionsPath+":generateUploadUrl", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, &cloudfunctions.GenerateUploadUrlResponse{
			UploadUrl: f.server.URL + "/upload",
			StorageSource: &cloudfunctions.StorageSource{
				Bucket: "gcf-v2-sources-demo",
				Object: "customer-api/source.zip",
			},
		})
	})
	mux.HandleFunc("PUT /upload", func(w http.ResponseWriter, r *http.Request) {
		if f.rejectUploads {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		f.mu.Lock()
		f.uploaded = body
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST "+functionPath+":setIamPolicy", func(w http.ResponseWriter, r *http.Request) {
		var req cloudfunctions.SetIamPolicyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.iamRequests = append(f.iamRequests, &req)
		f.mu.Unlock()
		writeJSON(w, req.Policy)
	})
	mux.HandleFunc("GET "+operationPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		op := &cloudfunctions.Operation{Name: operationName, Done: f.pendingPolls <= 0}
		if f.pendingPolls > 0 {
			f.pendingPolls--
		}
		if op.Done {
			op.Error = f.opError
		}
		writeJSON(w, op)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// newOperation returns a fresh pending or immediately-done operation
// depending on pendingPolls.
func (f *fakeAPI) newOperation() *cloudfunctions.Operation {
	if f.pendingPolls > 0 {
		return &cloudfunctions.Operation{Name: operationName, Done: false}
	}
	return &cloudfunctions.Operation{Name: operationName, Done: true, Error: f.opError}
}

func (f *fakeAPI) client(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(context.Background(),
		option.WithEndpoint(f.server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	c.PollInterval = time.Millisecond
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q,"status":"ERROR"}}`, code, msg)
}

func TestDeployCreatesNewFunction(t *testing.T) {
	api := newFakeAPI(t)
	c := api.client(t)

	res, err := c.Deploy(context.Background(), testSettings(), []byte("zip-bytes"))
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, "https://customer-api-abc123-uc.a.run.app", res.URL)
	assert.Equal(t, []byte("zip-bytes"), api.uploaded)
	assert.Equal(t, 1, api.createCalls)
	assert.Zero(t, api.patchCalls)
	assert.Empty(t, api.iamRequests, "IAM-only deploy must not touch the policy")

	require.NotNil(t, api.fn)
	assert.Equal(t, "python312", api.fn.BuildConfig.Runtime)
	assert.Equal(t, "customer_api", api.fn.BuildConfig.EntryPoint)
	assert.Equal(t, "256Mi", api.fn.ServiceConfig.AvailableMemory)
	assert.Equal(t, int64(60), api.fn.ServiceConfig.TimeoutSeconds)
	assert.Equal(t, "gcf-v2-sources-demo", api.fn.BuildConfig.Source.StorageSource.Bucket)
}

func TestDeployPatchesExistingFunction(t *testing.T) {
	api := newFakeAPI(t)
	api.fn = &cloudfunctions.Function{
		Name:          "projects/demo-project/locations/us-central1/functions/customer-api",
		State:         "ACTIVE",
		BuildConfig:   &cloudfunctions.BuildConfig{Runtime: "python311"},
		ServiceConfig: &cloudfunctions.ServiceConfig{Uri: "https://customer-api-abc123-uc.a.run.app"},
	}
	c := api.client(t)

	res, err := c.Deploy(context.Background(), testSettings(), []byte("zip-bytes"))
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Equal(t, 1, api.patchCalls)
	assert.Zero(t, api.createCalls)
	assert.Equal(t, "python312", api.fn.BuildConfig.Runtime)
}

func TestDeployPublicBindsInvoker(t *testing.T) {
	api := newFakeAPI(t)
	c := api.client(t)

	s := testSettings()
	s.Access = config.AccessPublic

	_, err := c.Deploy(context.Background(), s, []byte("zip"))
	require.NoError(t, err)

	require.Len(t, api.iamRequests, 1)
	binding := api.iamRequests[0].Policy.Bindings[0]
	assert.Equal(t, invokerRole, binding.Role)
	assert.Equal(t, []string{"allUsers"}, binding.Members)
}

func TestDeployPollsPendingOperation(t *testing.T) {
	api := newFakeAPI(t)
	api.pendingPolls = 3
	c := api.client(t)

	res, err := c.Deploy(context.Background(), testSettings(), []byte("zip"))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Zero(t, api.pendingPolls, "all pending polls should be consumed")
}

func TestDeployWithoutEndpointURLFails(t *testing.T) {
	api := newFakeAPI(t)
	api.withoutURL = true
	c := api.client(t)

	_, err := c.Deploy(context.Background(), testSettings(), []byte("zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no endpoint URL")
}

func TestDeployOperationFailure(t *testing.T) {
	api := newFakeAPI(t)
	api.opError = &cloudfunctions.Status{Code: 9, Message: "build failed"}
	c := api.client(t)

	_, err := c.Deploy(context.Background(), testSettings(), []byte("zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build failed")
}

func TestDescribe(t *testing.T) {
	api := newFakeAPI(t)
	api.fn = &cloudfunctions.Function{
		Name:          "projects/demo-project/locations/us-central1/functions/customer-api",
		State:         "ACTIVE",
		UpdateTime:    "2026-02-11T10:00:00Z",
		BuildConfig:   &cloudfunctions.BuildConfig{Runtime: "python312"},
		ServiceConfig: &cloudfunctions.ServiceConfig{Uri: "https://customer-api-abc123-uc.a.run.app"},
	}
	c := api.client(t)

	info, err := c.Describe(context.Background(), testSettings())
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", info.State)
	assert.Equal(t, "python312", info.Runtime)
	assert.Equal(t, "https://customer-api-abc123-uc.a.run.app", info.URL)
}

func TestDescribeNotFound(t *testing.T) {
	api := newFakeAPI(t)
	c := api.client(t)

	_, err := c.Describe(context.Background(), testSettings())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	api := newFakeAPI(t)
	api.fn = &cloudfunctions.Function{Name: "projects/demo-project/locations/us-central1/functions/customer-api"}
	c := api.client(t)

	require.NoError(t, c.Delete(context.Background(), testSettings()))
	assert.Equal(t, 1, api.deleteCalls)
	assert.Nil(t, api.fn)
}

func TestDeleteNotFound(t *testing.T) {
	api := newFakeAPI(t)
	c := api.client(t)

	err := c.Delete(context.Background(), testSettings())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeployUploadFailure(t *testing.T) {
	api := newFakeAPI(t)
	api.rejectUploads = true
	c := api.client(t)

	_, err := c.Deploy(context.Background(), testSettings(), []byte("zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload")
	assert.Zero(t, api.createCalls, "failed upload must not reach the create call")
}
