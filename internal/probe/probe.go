// Package probe fetches the remote state a publish starts from.
package probe

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/DevExpGBB/azsvc/internal/mgmt"
)

// Scenario classifies the hosted service and deployment state.
type Scenario int

const (
	// ServiceAbsent: no hosted service with the name exists.
	ServiceAbsent Scenario = iota
	// DeploymentAbsent: the hosted service exists with nothing in the slot.
	DeploymentAbsent
	// DeploymentExists: a deployment is already in the slot.
	DeploymentExists
)

func (s Scenario) String() string {
	switch s {
	case ServiceAbsent:
		return "service absent"
	case DeploymentAbsent:
		return "deployment absent"
	case DeploymentExists:
		return "deployment exists"
	}
	return fmt.Sprintf("Scenario(%d)", int(s))
}

// StorageState classifies the storage account.
type StorageState int

const (
	StorageAbsent StorageState = iota
	StoragePending
	StorageCreated
)

func (s StorageState) String() string {
	switch s {
	case StorageAbsent:
		return "absent"
	case StoragePending:
		return "pending"
	case StorageCreated:
		return "created"
	}
	return fmt.Sprintf("StorageState(%d)", int(s))
}

// State is a snapshot of the remote resources a publish touches. A nil
// field means the resource does not exist.
type State struct {
	ServiceName string
	Slot        string

	HostedService *mgmt.HostedService
	Deployment    *mgmt.Deployment
	Storage       *mgmt.StorageService

	serviceFound    bool
	deploymentFound bool
	storageFound    bool
}

// ServiceExists reports whether the hosted service exists.
func (s *State) ServiceExists() bool { return s.serviceFound }

// Scenario classifies the hosted service and slot.
func (s *State) Scenario() Scenario {
	switch {
	case !s.serviceFound:
		return ServiceAbsent
	case s.deploymentFound || s.HostedService.DeploymentInSlot(s.Slot) != nil:
		return DeploymentExists
	default:
		return DeploymentAbsent
	}
}

// StorageState classifies the storage account.
func (s *State) StorageState() StorageState {
	switch {
	case !s.storageFound:
		return StorageAbsent
	case s.Storage != nil && s.Storage.Properties.Status == mgmt.StorageCreated:
		return StorageCreated
	default:
		return StoragePending
	}
}

// Error is a probe failure other than not found.
type Error struct {
	Probe string
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("probing %s: %v", e.Probe, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Prober reads remote state through a management client.
type Prober struct {
	Client mgmt.Client
}

// Probe fetches the hosted service, the deployment in slot and the storage
// account. The lookups are read-only and run concurrently.
func (p *Prober) Probe(ctx context.Context, serviceName, storageName, slot string) (*State, error) {
	st := &State{ServiceName: serviceName, Slot: slot}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hs, found, err := lookup(p.Client.GetHostedServiceDetails(ctx, serviceName))
		if err != nil {
			return &Error{Probe: "hosted service " + serviceName, Err: err}
		}
		st.HostedService, st.serviceFound = hs, found
		return nil
	})
	g.Go(func() error {
		d, found, err := lookup(p.Client.GetDeploymentBySlot(ctx, serviceName, slot))
		if err != nil {
			return &Error{Probe: "deployment " + serviceName + "/" + slot, Err: err}
		}
		st.Deployment, st.deploymentFound = d, found
		return nil
	})
	g.Go(func() error {
		s, found, err := lookup(p.Client.GetStorageServiceDetails(ctx, storageName))
		if err != nil {
			return &Error{Probe: "storage account " + storageName, Err: err}
		}
		st.Storage, st.storageFound = s, found
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}

// lookup turns a not-found error into found == false. A nil value with no
// error counts as found.
func lookup[T any](v *T, err error) (*T, bool, error) {
	if mgmt.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
