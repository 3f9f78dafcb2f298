// Package mgmttest provides a scripted in-memory mgmt.Client for tests.
//
// Every operation has an ordered queue of responses. The Nth call to an
// operation gets the Nth queued response; once the queue is down to its last
// entry that entry is repeated. An operation with nothing queued returns a
// zero value and no error, except lookups which return mgmt.ErrNotFound.
package mgmttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/DevExpGBB/azsvc/internal/mgmt"
)

// Operation names, as recorded in the call log.
const (
	OpGetHostedService    = "GetHostedServiceDetails"
	OpCreateHostedService = "CreateHostedService"
	OpDeleteHostedService = "DeleteHostedService"
	OpGetDeployment       = "GetDeploymentBySlot"
	OpCreateDeployment    = "CreateOrUpdateDeployment"
	OpUpgradeDeployment   = "UpgradeDeployment"
	OpDeleteDeployment    = "DeleteDeployment"
	OpGetStorage          = "GetStorageServiceDetails"
	OpCreateStorage       = "CreateStorageService"
	OpGetStorageKeys      = "GetStorageServiceKeys"
	OpListCertificates    = "ListCertificates"
	OpUploadPackage       = "UploadPackage"
)

// Call is one recorded invocation.
type Call struct {
	Op string
	// Name is the primary resource name the call addressed.
	Name string
	Slot string
	// Args holds the request payload for mutations, if any.
	Args any
}

// Response is one scripted result.
type Response struct {
	Value any
	Err   error
}

// Fake implements mgmt.Client from scripted responses.
type Fake struct {
	mu     sync.Mutex
	queues map[string][]Response
	calls  []Call
}

var _ mgmt.Client = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{queues: make(map[string][]Response)}
}

// On appends responses for op and returns the Fake for chaining.
func (f *Fake) On(op string, responses ...Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[op] = append(f.queues[op], responses...)
	return f
}

// Return is shorthand for a successful Response.
func Return(v any) Response { return Response{Value: v} }

// Fail is shorthand for a failed Response.
func Fail(err error) Response { return Response{Err: err} }

// NotFound is shorthand for a not-found Response.
func NotFound() Response { return Response{Err: mgmt.ErrNotFound} }

// Calls returns a copy of the call log.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the operation names of the call log, optionally restricted to
// the given set of operations.
func (f *Fake) Ops(only ...string) []string {
	keep := make(map[string]bool, len(only))
	for _, op := range only {
		keep[op] = true
	}
	var ops []string
	for _, c := range f.Calls() {
		if len(keep) == 0 || keep[c.Op] {
			ops = append(ops, c.Op)
		}
	}
	return ops
}

// Count returns how many times op was called.
func (f *Fake) Count(op string) int {
	return len(f.Ops(op))
}

// Mutations are the operations that change remote state.
var Mutations = []string{
	OpCreateHostedService, OpDeleteHostedService,
	OpCreateDeployment, OpUpgradeDeployment, OpDeleteDeployment,
	OpCreateStorage,
}

func (f *Fake) next(c Call, notFoundWhenEmpty bool) Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)

	q := f.queues[c.Op]
	if len(q) == 0 {
		if notFoundWhenEmpty {
			return NotFound()
		}
		return Response{}
	}
	r := q[0]
	if len(q) > 1 {
		f.queues[c.Op] = q[1:]
	}
	return r
}

func value[T any](r Response) (*T, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	switch v := r.Value.(type) {
	case nil:
		return nil, nil
	case *T:
		if v == nil {
			return nil, nil
		}
		cp := *v
		return &cp, nil
	case T:
		return &v, nil
	default:
		panic(fmt.Sprintf("mgmttest: scripted %T, want %T", r.Value, new(T)))
	}
}

func (f *Fake) GetHostedServiceDetails(ctx context.Context, name string) (*mgmt.HostedService, error) {
	return value[mgmt.HostedService](f.next(Call{Op: OpGetHostedService, Name: name}, true))
}

func (f *Fake) CreateHostedService(ctx context.Context, in *mgmt.CreateHostedServiceInput) error {
	return f.next(Call{Op: OpCreateHostedService, Name: in.ServiceName, Args: *in}, false).Err
}

func (f *Fake) DeleteHostedService(ctx context.Context, name string) error {
	return f.next(Call{Op: OpDeleteHostedService, Name: name}, false).Err
}

func (f *Fake) GetDeploymentBySlot(ctx context.Context, service, slot string) (*mgmt.Deployment, error) {
	return value[mgmt.Deployment](f.next(Call{Op: OpGetDeployment, Name: service, Slot: slot}, true))
}

func (f *Fake) CreateOrUpdateDeployment(ctx context.Context, service, slot string, req *mgmt.DeploymentRequest) error {
	return f.next(Call{Op: OpCreateDeployment, Name: service, Slot: slot, Args: *req}, false).Err
}

func (f *Fake) UpgradeDeployment(ctx context.Context, service, slot string, req *mgmt.DeploymentRequest) error {
	return f.next(Call{Op: OpUpgradeDeployment, Name: service, Slot: slot, Args: *req}, false).Err
}

func (f *Fake) DeleteDeployment(ctx context.Context, service, slot string) error {
	return f.next(Call{Op: OpDeleteDeployment, Name: service, Slot: slot}, false).Err
}

func (f *Fake) GetStorageServiceDetails(ctx context.Context, name string) (*mgmt.StorageService, error) {
	return value[mgmt.StorageService](f.next(Call{Op: OpGetStorage, Name: name}, true))
}

func (f *Fake) CreateStorageService(ctx context.Context, in *mgmt.CreateStorageServiceInput) error {
	return f.next(Call{Op: OpCreateStorage, Name: in.ServiceName, Args: *in}, false).Err
}

func (f *Fake) GetStorageServiceKeys(ctx context.Context, name string) (*mgmt.StorageKeys, error) {
	r := f.next(Call{Op: OpGetStorageKeys, Name: name}, false)
	if r.Err == nil && r.Value == nil {
		return &mgmt.StorageKeys{Primary: "cHJpbWFyeQ==", Secondary: "c2Vjb25kYXJ5"}, nil
	}
	return value[mgmt.StorageKeys](r)
}

func (f *Fake) ListCertificates(ctx context.Context, service string) ([]mgmt.Certificate, error) {
	r := f.next(Call{Op: OpListCertificates, Name: service}, false)
	if r.Err != nil {
		return nil, r.Err
	}
	certs, _ := r.Value.([]mgmt.Certificate)
	return certs, nil
}

func (f *Fake) UploadPackage(ctx context.Context, account, key, path string) (string, error) {
	r := f.next(Call{Op: OpUploadPackage, Name: account, Args: path}, false)
	if r.Err != nil {
		return "", r.Err
	}
	if u, ok := r.Value.(string); ok {
		return u, nil
	}
	return "https://" + account + ".blob.example.net/packages/cloud_package.zip", nil
}
