package mgmt

import "context"

// Deployment slots.
const (
	SlotProduction = "Production"
	SlotStaging    = "Staging"
)

// Deployment status values reported by the management API.
const (
	DeploymentRunning                = "Running"
	DeploymentSuspended              = "Suspended"
	DeploymentRunningTransitioning   = "RunningTransitioning"
	DeploymentSuspendedTransitioning = "SuspendedTransitioning"
	DeploymentStarting               = "Starting"
	DeploymentSuspending             = "Suspending"
	DeploymentDeploying              = "Deploying"
	DeploymentDeleting               = "Deleting"
)

// Role instance status values.
const (
	RoleReady        = "ReadyRole"
	RoleBusy         = "BusyRole"
	RoleInitializing = "Initializing"
	RoleStopped      = "StoppedRole"
	RoleCycling      = "CyclingRole"
	RoleUnknown      = "RoleStateUnknown"
)

// Storage account status values.
const (
	StorageCreating  = "Creating"
	StorageCreated   = "Created"
	StorageResolving = "ResolvingDns"
	StorageDeleting  = "Deleting"
)

// Client is the subset of the management API used by azsvc.
// Lookups return an error matching ErrNotFound when the resource is absent.
type Client interface {
	GetHostedServiceDetails(ctx context.Context, name string) (*HostedService, error)
	CreateHostedService(ctx context.Context, in *CreateHostedServiceInput) error
	DeleteHostedService(ctx context.Context, name string) error

	GetDeploymentBySlot(ctx context.Context, service, slot string) (*Deployment, error)
	CreateOrUpdateDeployment(ctx context.Context, service, slot string, req *DeploymentRequest) error
	UpgradeDeployment(ctx context.Context, service, slot string, req *DeploymentRequest) error
	DeleteDeployment(ctx context.Context, service, slot string) error

	GetStorageServiceDetails(ctx context.Context, name string) (*StorageService, error)
	CreateStorageService(ctx context.Context, in *CreateStorageServiceInput) error
	GetStorageServiceKeys(ctx context.Context, name string) (*StorageKeys, error)

	ListCertificates(ctx context.Context, service string) ([]Certificate, error)

	// UploadPackage stores the package file in the given storage account and
	// returns the URL the deployment should reference.
	UploadPackage(ctx context.Context, account, key, path string) (string, error)
}

// HostedService is the remote container that holds deployments.
type HostedService struct {
	ServiceName   string       `json:"serviceName"`
	URL           string       `json:"url,omitempty"`
	Label         string       `json:"label,omitempty"`
	Location      string       `json:"location,omitempty"`
	AffinityGroup string       `json:"affinityGroup,omitempty"`
	Status        string       `json:"status,omitempty"`
	Deployments   []Deployment `json:"deployments,omitempty"`
}

// DeploymentInSlot returns the listed deployment for slot, or nil.
func (h *HostedService) DeploymentInSlot(slot string) *Deployment {
	if h == nil {
		return nil
	}
	for i := range h.Deployments {
		if h.Deployments[i].Slot == slot {
			return &h.Deployments[i]
		}
	}
	return nil
}

// CreateHostedServiceInput is the payload for creating a hosted service.
// Exactly one of Location and AffinityGroup should be set.
type CreateHostedServiceInput struct {
	ServiceName   string `json:"serviceName"`
	Label         string `json:"label"`
	Description   string `json:"description,omitempty"`
	Location      string `json:"location,omitempty"`
	AffinityGroup string `json:"affinityGroup,omitempty"`
}

// Deployment is a point-in-time snapshot of a deployment in a slot.
type Deployment struct {
	Name          string         `json:"name"`
	Slot          string         `json:"deploymentSlot"`
	Status        string         `json:"status"`
	Label         string         `json:"label,omitempty"`
	URL           string         `json:"url,omitempty"`
	PrivateID     string         `json:"privateId,omitempty"`
	RoleInstances []RoleInstance `json:"roleInstanceList,omitempty"`
}

// RoleInstance reports the status of one running instance of a role.
type RoleInstance struct {
	RoleName     string `json:"roleName"`
	InstanceName string `json:"instanceName"`
	Status       string `json:"instanceStatus"`
}

// DeploymentRequest describes the desired deployment in a slot.
type DeploymentRequest struct {
	Name                 string `json:"name"`
	PackageURL           string `json:"packageUrl"`
	Label                string `json:"label"`
	Configuration        []byte `json:"configuration"`
	StartDeployment      bool   `json:"startDeployment"`
	TreatWarningsAsError bool   `json:"treatWarningsAsError,omitempty"`
	// Mode is only honored by UpgradeDeployment.
	Mode string `json:"mode,omitempty"`
}

// StorageService describes a storage account.
type StorageService struct {
	ServiceName string            `json:"serviceName"`
	URL         string            `json:"url,omitempty"`
	Properties  StorageProperties `json:"storageServiceProperties"`
}

// StorageProperties holds the mutable part of a storage account.
type StorageProperties struct {
	Status        string   `json:"status"`
	Location      string   `json:"location,omitempty"`
	AffinityGroup string   `json:"affinityGroup,omitempty"`
	Label         string   `json:"label,omitempty"`
	Endpoints     []string `json:"endpoints,omitempty"`
}

// CreateStorageServiceInput is the payload for creating a storage account.
type CreateStorageServiceInput struct {
	ServiceName   string `json:"serviceName"`
	Label         string `json:"label"`
	Location      string `json:"location,omitempty"`
	AffinityGroup string `json:"affinityGroup,omitempty"`
}

// StorageKeys holds the access keys of a storage account.
type StorageKeys struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// Certificate is a certificate uploaded to a hosted service.
type Certificate struct {
	Thumbprint          string `json:"thumbprint"`
	ThumbprintAlgorithm string `json:"thumbprintAlgorithm"`
	URL                 string `json:"certificateUrl,omitempty"`
}
