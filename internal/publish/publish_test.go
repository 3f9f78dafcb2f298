package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevExpGBB/azsvc/internal/history"
	"github.com/DevExpGBB/azsvc/internal/mgmt"
	"github.com/DevExpGBB/azsvc/internal/mgmt/mgmttest"
	"github.com/DevExpGBB/azsvc/internal/pkgbuild"
	"github.com/DevExpGBB/azsvc/internal/service"
	"github.com/DevExpGBB/azsvc/internal/wait"
)

// steppingClock advances itself on every After so polls never block.
type steppingClock struct {
	clockwork.FakeClock
}

func (c *steppingClock) After(d time.Duration) <-chan time.Time {
	c.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

const definition = `name: mysvc
roles:
  - name: WebRole1
    type: web
    entryPoint: server.js
  - name: WorkerRole1
    type: worker
    entryPoint: worker.js
`

const cloudConfig = `name: mysvc
roles:
  - name: WebRole1
    instances: 1
  - name: WorkerRole1
    instances: 1
`

func writeService(t *testing.T, cloud string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		service.DefinitionFile:  definition,
		service.CloudConfigFile: cloud,
		"WebRole1/server.js":    "server",
		"WorkerRole1/worker.js": "worker",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

type memHistory struct {
	records []history.Record
}

func (m *memHistory) Add(r *history.Record) error {
	m.records = append(m.records, *r)
	return nil
}

func newPublisher(f *mgmttest.Fake) *Publisher {
	return &Publisher{
		Client:  f,
		Builder: &pkgbuild.Builder{},
		Policy: wait.Policy{
			Interval:    time.Second,
			Multiplier:  1,
			MaxAttempts: 10,
			Clock:       &steppingClock{FakeClock: clockwork.NewFakeClock()},
		},
		Log: zerolog.Nop(),
	}
}

func readyDeployment(status string) *mgmt.Deployment {
	return &mgmt.Deployment{
		Name:   "d-new",
		Slot:   mgmt.SlotProduction,
		Status: status,
		URL:    "http://mysvc.cloudapp.example.net/",
		RoleInstances: []mgmt.RoleInstance{
			{RoleName: "WebRole1", InstanceName: "WebRole1_IN_0", Status: mgmt.RoleReady},
			{RoleName: "WorkerRole1", InstanceName: "WorkerRole1_IN_0", Status: mgmt.RoleReady},
		},
	}
}

func storage(status string) mgmttest.Response {
	return mgmttest.Return(&mgmt.StorageService{
		ServiceName: "mysvc",
		Properties:  mgmt.StorageProperties{Status: status},
	})
}

var opts = Options{Location: "West US"}

func TestPublish_StateMachine(t *testing.T) {
	storageCases := []struct {
		name      string
		responses []mgmttest.Response
		create    bool
	}{
		{"storage absent", []mgmttest.Response{mgmttest.NotFound(), mgmttest.NotFound(), storage(mgmt.StorageCreating), storage(mgmt.StorageCreated)}, true},
		{"storage creating", []mgmttest.Response{storage(mgmt.StorageCreating), storage(mgmt.StorageResolving), storage(mgmt.StorageCreated)}, false},
		{"storage created", []mgmttest.Response{storage(mgmt.StorageCreated)}, false},
	}
	serviceCases := []struct {
		name   string
		setup  func(f *mgmttest.Fake)
		expect []string
		action string
	}{
		{
			name: "service absent",
			setup: func(f *mgmttest.Fake) {
				f.On(mgmttest.OpGetDeployment, mgmttest.NotFound(), mgmttest.NotFound(), mgmttest.Return(readyDeployment(mgmt.DeploymentRunning)))
			},
			expect: []string{mgmttest.OpCreateHostedService, mgmttest.OpCreateDeployment},
			action: ActionCreate,
		},
		{
			name: "deployment absent",
			setup: func(f *mgmttest.Fake) {
				f.On(mgmttest.OpGetHostedService, mgmttest.Return(&mgmt.HostedService{ServiceName: "mysvc"}))
				f.On(mgmttest.OpGetDeployment, mgmttest.NotFound(), mgmttest.Return(readyDeployment(mgmt.DeploymentStarting)))
			},
			expect: []string{mgmttest.OpCreateDeployment},
			action: ActionCreate,
		},
		{
			name: "deployment exists",
			setup: func(f *mgmttest.Fake) {
				f.On(mgmttest.OpGetHostedService, mgmttest.Return(&mgmt.HostedService{ServiceName: "mysvc"}))
				f.On(mgmttest.OpGetDeployment,
					mgmttest.Return(&mgmt.Deployment{Name: "d-old", Slot: mgmt.SlotProduction, Status: mgmt.DeploymentRunning}),
					mgmttest.Return(&mgmt.Deployment{Name: "d-old", Status: mgmt.DeploymentRunningTransitioning}),
					mgmttest.Return(readyDeployment(mgmt.DeploymentRunning)))
			},
			expect: []string{mgmttest.OpUpgradeDeployment},
			action: ActionUpgrade,
		},
	}

	for _, sc := range storageCases {
		for _, hc := range serviceCases {
			t.Run(sc.name+"/"+hc.name, func(t *testing.T) {
				f := mgmttest.New().On(mgmttest.OpGetStorage, sc.responses...)
				hc.setup(f)

				res, err := newPublisher(f).Publish(context.Background(), writeService(t, cloudConfig), opts)
				require.NoError(t, err)
				assert.Equal(t, hc.action, res.Action)
				assert.Equal(t, "mysvc", res.StorageAccount)

				want := hc.expect
				if sc.create {
					want = append([]string{mgmttest.OpCreateStorage}, want...)
				}
				assert.Equal(t, want, f.Ops(mgmttest.Mutations...))

				deployMutations := f.Count(mgmttest.OpCreateDeployment) + f.Count(mgmttest.OpUpgradeDeployment)
				assert.Equal(t, 1, deployMutations)

				// Storage is resolved before any hosted service or deployment mutation.
				calls := f.Calls()
				lastStorage, firstService := -1, len(calls)
				for i, c := range calls {
					switch c.Op {
					case mgmttest.OpGetStorage, mgmttest.OpCreateStorage, mgmttest.OpGetStorageKeys:
						lastStorage = i
					case mgmttest.OpCreateHostedService, mgmttest.OpCreateDeployment, mgmttest.OpUpgradeDeployment:
						if i < firstService {
							firstService = i
						}
					}
				}
				assert.Less(t, lastStorage, firstService)
			})
		}
	}
}

func TestPublish_NewServiceScenario(t *testing.T) {
	f := mgmttest.New().
		On(mgmttest.OpGetStorage, mgmttest.NotFound(), mgmttest.NotFound(), storage(mgmt.StorageCreating), storage(mgmt.StorageCreated)).
		On(mgmttest.OpGetDeployment, mgmttest.NotFound(), mgmttest.NotFound(), mgmttest.Return(readyDeployment(mgmt.DeploymentStarting)))

	var out bytes.Buffer
	hist := &memHistory{}
	p := newPublisher(f)
	p.Out = &out
	p.History = hist

	dir := writeService(t, cloudConfig)
	res, err := p.Publish(context.Background(), dir, opts)
	require.NoError(t, err)

	calls := f.Calls()
	require.True(t, len(calls) > 3)
	probes := []string{calls[0].Op, calls[1].Op, calls[2].Op}
	assert.ElementsMatch(t, []string{mgmttest.OpGetHostedService, mgmttest.OpGetDeployment, mgmttest.OpGetStorage}, probes)

	var rest []string
	for _, c := range calls[3:] {
		rest = append(rest, c.Op)
	}
	assert.Equal(t, []string{
		mgmttest.OpCreateStorage,
		mgmttest.OpGetStorage, mgmttest.OpGetStorage, mgmttest.OpGetStorage,
		mgmttest.OpGetStorageKeys,
		mgmttest.OpUploadPackage,
		mgmttest.OpCreateHostedService,
		mgmttest.OpCreateDeployment,
		mgmttest.OpGetDeployment, mgmttest.OpGetDeployment,
	}, rest)

	assert.Equal(t, mgmt.DeploymentStarting, res.Deployment.Status)
	for _, ri := range res.Deployment.RoleInstances {
		assert.Equal(t, mgmt.RoleReady, ri.Status)
	}

	storageIn := calls[3].Args.(mgmt.CreateStorageServiceInput)
	assert.Equal(t, "West US", storageIn.Location)

	var req mgmt.DeploymentRequest
	for _, c := range calls {
		if c.Op == mgmttest.OpCreateDeployment {
			req = c.Args.(mgmt.DeploymentRequest)
			assert.Equal(t, mgmt.SlotProduction, c.Slot)
		}
	}
	assert.Equal(t, "https://mysvc.blob.example.net/packages/cloud_package.zip", req.PackageURL)
	assert.True(t, req.StartDeployment)
	assert.NotEmpty(t, req.Name)
	assert.Contains(t, string(req.Configuration), "AccountName=mysvc;AccountKey=cHJpbWFyeQ==")

	// The connection string is persisted in the cloud configuration.
	svc, err := service.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, service.ConnectionString("mysvc", "cHJpbWFyeQ=="),
		svc.Cloud.Role("WorkerRole1").Settings[service.StorageConnectionSetting])

	settings, err := service.LoadSettings(filepath.Join(dir, service.SettingsFile))
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, "mysvc", settings.ServiceName)
	assert.Equal(t, mgmt.SlotProduction, settings.Slot)
	assert.Equal(t, req.Name, settings.DeploymentName)

	require.Len(t, hist.records, 1)
	assert.Equal(t, ActionCreate, hist.records[0].Action)
	assert.Contains(t, out.String(), "Creating hosted service mysvc")
}

func TestPublish_UpgradeScenario(t *testing.T) {
	f := mgmttest.New().
		On(mgmttest.OpGetStorage, storage(mgmt.StorageCreated)).
		On(mgmttest.OpGetHostedService, mgmttest.Return(&mgmt.HostedService{
			ServiceName: "mysvc",
			Deployments: []mgmt.Deployment{{Name: "d-old", Slot: mgmt.SlotProduction}},
		})).
		On(mgmttest.OpGetDeployment,
			mgmttest.Return(&mgmt.Deployment{Name: "d-old", Slot: mgmt.SlotProduction, Status: mgmt.DeploymentRunning}),
			mgmttest.Return(readyDeployment(mgmt.DeploymentRunning)))

	res, err := newPublisher(f).Publish(context.Background(), writeService(t, cloudConfig), Options{})
	require.NoError(t, err)

	var rest []string
	for _, c := range f.Calls()[3:] {
		rest = append(rest, c.Op)
	}
	assert.Equal(t, []string{
		mgmttest.OpGetStorageKeys,
		mgmttest.OpUploadPackage,
		mgmttest.OpUpgradeDeployment,
		mgmttest.OpGetDeployment,
	}, rest)
	assert.Zero(t, f.Count(mgmttest.OpCreateHostedService))
	assert.Zero(t, f.Count(mgmttest.OpCreateDeployment))
	assert.Equal(t, ActionUpgrade, res.Action)

	for _, c := range f.Calls() {
		if c.Op == mgmttest.OpUpgradeDeployment {
			assert.Equal(t, "d-old", c.Args.(mgmt.DeploymentRequest).Name)
		}
	}
}

func TestPublish_RenameOverride(t *testing.T) {
	f := mgmttest.New().
		On(mgmttest.OpGetStorage, storage(mgmt.StorageCreated)).
		On(mgmttest.OpGetDeployment, mgmttest.NotFound(), mgmttest.Return(readyDeployment(mgmt.DeploymentRunning)))

	dir := writeService(t, cloudConfig)
	res, err := newPublisher(f).Publish(context.Background(), dir, Options{ServiceName: "renamed", Location: "West US"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", res.ServiceName)

	for _, c := range f.Calls() {
		assert.NotEqual(t, "mysvc", c.Name, "%s used the old name", c.Op)
		if in, ok := c.Args.(mgmt.CreateHostedServiceInput); ok {
			assert.Equal(t, "renamed", in.ServiceName)
		}
	}

	svc, err := service.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "renamed", svc.Name())
	assert.Equal(t, "renamed", svc.Cloud.Name)
}

func TestPublish_SkipUpload(t *testing.T) {
	f := mgmttest.New().
		On(mgmttest.OpGetStorage, storage(mgmt.StorageCreated)).
		On(mgmttest.OpGetHostedService, mgmttest.Return(&mgmt.HostedService{ServiceName: "mysvc"})).
		On(mgmttest.OpGetDeployment, mgmttest.NotFound(), mgmttest.Return(readyDeployment(mgmt.DeploymentRunning)))

	dir := writeService(t, cloudConfig)
	res, err := newPublisher(f).Publish(context.Background(), dir, Options{SkipUpload: true})
	require.NoError(t, err)

	assert.Zero(t, f.Count(mgmttest.OpUploadPackage))
	assert.Equal(t, res.Package.Path, res.PackageURL)
	assert.Equal(t, []string{mgmttest.OpCreateDeployment}, f.Ops(mgmttest.Mutations...))
}

func TestPublish_MutationError(t *testing.T) {
	conflict := &mgmt.APIError{StatusCode: 409, Code: "ConflictError", Message: "name taken", OperationID: "op-1"}
	f := mgmttest.New().
		On(mgmttest.OpGetStorage, storage(mgmt.StorageCreated)).
		On(mgmttest.OpCreateHostedService, mgmttest.Fail(conflict))

	_, err := newPublisher(f).Publish(context.Background(), writeService(t, cloudConfig), opts)
	require.Error(t, err)

	var me *MutationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "create hosted service", me.Step)

	var apiErr *mgmt.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "op-1", apiErr.OperationID)
	assert.Contains(t, err.Error(), "name taken")

	assert.Equal(t, 1, f.Count(mgmttest.OpCreateHostedService))
	assert.Zero(t, f.Count(mgmttest.OpCreateDeployment))
}

func TestPublish_WaitTimeout(t *testing.T) {
	stuck := &mgmt.Deployment{Name: "d", Status: mgmt.DeploymentDeploying}
	f := mgmttest.New().
		On(mgmttest.OpGetStorage, storage(mgmt.StorageCreated)).
		On(mgmttest.OpGetHostedService, mgmttest.Return(&mgmt.HostedService{ServiceName: "mysvc"})).
		On(mgmttest.OpGetDeployment, mgmttest.NotFound(), mgmttest.Return(stuck))

	p := newPublisher(f)
	p.Policy.MaxAttempts = 3
	_, err := p.Publish(context.Background(), writeService(t, cloudConfig), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, wait.ErrTimeout))

	var te *wait.TimeoutError
	require.True(t, errors.As(err, &te))
	last, ok := te.Last.(*mgmt.Deployment)
	require.True(t, ok)
	assert.Equal(t, mgmt.DeploymentDeploying, last.Status)
}

func TestPublish_ProbeErrorStopsBeforeMutation(t *testing.T) {
	f := mgmttest.New().
		On(mgmttest.OpGetHostedService, mgmttest.Fail(&mgmt.APIError{StatusCode: 500, Message: "down"}))

	_, err := newPublisher(f).Publish(context.Background(), writeService(t, cloudConfig), opts)
	require.Error(t, err)
	assert.Empty(t, f.Ops(mgmttest.Mutations...))
	assert.Zero(t, f.Count(mgmttest.OpUploadPackage))
}

func TestPublish_PackagingErrorStopsBeforeRemoteCalls(t *testing.T) {
	dir := writeService(t, cloudConfig)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "WorkerRole1")))

	f := mgmttest.New()
	_, err := newPublisher(f).Publish(context.Background(), dir, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgbuild.ErrMissingContent))
	assert.Empty(t, f.Calls())
}

func TestPublish_LocationRequired(t *testing.T) {
	f := mgmttest.New()
	_, err := newPublisher(f).Publish(context.Background(), writeService(t, cloudConfig), Options{})
	assert.True(t, errors.Is(err, ErrLocationRequired))
	assert.Empty(t, f.Ops(mgmttest.Mutations...))
}

func TestPublish_MissingCertificate(t *testing.T) {
	withCert := cloudConfig + "    certificates:\n      - name: ssl\n        thumbprint: ABC123\n"
	f := mgmttest.New().
		On(mgmttest.OpGetStorage, storage(mgmt.StorageCreated)).
		On(mgmttest.OpGetHostedService, mgmttest.Return(&mgmt.HostedService{ServiceName: "mysvc"})).
		On(mgmttest.OpListCertificates, mgmttest.Return([]mgmt.Certificate{{Thumbprint: "OTHER"}}))

	_, err := newPublisher(f).Publish(context.Background(), writeService(t, withCert), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCertificate))
	assert.Contains(t, err.Error(), "ABC123")
	assert.Zero(t, f.Count(mgmttest.OpCreateDeployment))
}

func TestPublish_CertificatePresent(t *testing.T) {
	withCert := cloudConfig + "    certificates:\n      - name: ssl\n        thumbprint: abc123\n"
	f := mgmttest.New().
		On(mgmttest.OpGetStorage, storage(mgmt.StorageCreated)).
		On(mgmttest.OpGetHostedService, mgmttest.Return(&mgmt.HostedService{ServiceName: "mysvc"})).
		On(mgmttest.OpListCertificates, mgmttest.Return([]mgmt.Certificate{{Thumbprint: "ABC123"}})).
		On(mgmttest.OpGetDeployment, mgmttest.NotFound(), mgmttest.Return(readyDeployment(mgmt.DeploymentRunning)))

	_, err := newPublisher(f).Publish(context.Background(), writeService(t, withCert), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.Count(mgmttest.OpListCertificates))
}

func TestPublish_Launch(t *testing.T) {
	f := mgmttest.New().
		On(mgmttest.OpGetStorage, storage(mgmt.StorageCreated)).
		On(mgmttest.OpGetHostedService, mgmttest.Return(&mgmt.HostedService{ServiceName: "mysvc"})).
		On(mgmttest.OpGetDeployment, mgmttest.NotFound(), mgmttest.Return(readyDeployment(mgmt.DeploymentRunning)))

	var launched []string
	p := newPublisher(f)
	p.Launch = func(url string) error {
		launched = append(launched, url)
		return fmt.Errorf("no browser")
	}
	_, err := p.Publish(context.Background(), writeService(t, cloudConfig), Options{Launch: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://mysvc.cloudapp.example.net/"}, launched)
}

func TestPublish_StagingSlot(t *testing.T) {
	f := mgmttest.New().
		On(mgmttest.OpGetStorage, storage(mgmt.StorageCreated)).
		On(mgmttest.OpGetHostedService, mgmttest.Return(&mgmt.HostedService{
			ServiceName: "mysvc",
			Deployments: []mgmt.Deployment{{Name: "d-prod", Slot: mgmt.SlotProduction}},
		})).
		On(mgmttest.OpGetDeployment, mgmttest.NotFound(), mgmttest.Return(readyDeployment(mgmt.DeploymentRunning)))

	res, err := newPublisher(f).Publish(context.Background(), writeService(t, cloudConfig), Options{Slot: "staging"})
	require.NoError(t, err)
	assert.Equal(t, mgmt.SlotStaging, res.Slot)
	assert.Equal(t, []string{mgmttest.OpCreateDeployment}, f.Ops(mgmttest.Mutations...))
	for _, c := range f.Calls() {
		if c.Op == mgmttest.OpCreateDeployment {
			assert.Equal(t, mgmt.SlotStaging, c.Slot)
		}
	}
}

func TestParseSlot(t *testing.T) {
	for in, want := range map[string]string{"": mgmt.SlotProduction, "PRODUCTION": mgmt.SlotProduction, "staging": mgmt.SlotStaging} {
		got, err := ParseSlot(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSlot("canary")
	assert.True(t, errors.Is(err, ErrInvalidSlot))
}

func TestDeploymentReady(t *testing.T) {
	starting := readyDeployment(mgmt.DeploymentStarting)
	assert.True(t, DeploymentReady(false)(starting))
	assert.False(t, DeploymentReady(true)(starting))
	assert.True(t, DeploymentReady(true)(readyDeployment(mgmt.DeploymentRunning)))

	busy := readyDeployment(mgmt.DeploymentRunning)
	busy.RoleInstances[1].Status = mgmt.RoleBusy
	assert.False(t, DeploymentReady(false)(busy))
	assert.False(t, DeploymentReady(false)(&mgmt.Deployment{Status: mgmt.DeploymentRunning}))
	assert.False(t, DeploymentReady(false)(nil))
}
