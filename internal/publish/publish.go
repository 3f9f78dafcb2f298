// Package publish drives a service from local files to a running deployment.
//
// A publish builds the package, probes remote state once, makes sure the
// storage account exists and is Created, then creates or upgrades the
// deployment in the target slot and waits for every role instance to be
// ready. Mutations are never retried; only status reads are polled.
package publish

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/DevExpGBB/azsvc/internal/history"
	"github.com/DevExpGBB/azsvc/internal/mgmt"
	"github.com/DevExpGBB/azsvc/internal/pkgbuild"
	"github.com/DevExpGBB/azsvc/internal/probe"
	"github.com/DevExpGBB/azsvc/internal/service"
	"github.com/DevExpGBB/azsvc/internal/wait"
)

// Actions taken on the deployment slot.
const (
	ActionCreate  = "create"
	ActionUpgrade = "upgrade"
)

// Options are the per-publish parameters.
type Options struct {
	// ServiceName, if set and different from the stored name, renames the
	// local service before anything else happens.
	ServiceName   string
	Slot          string
	Location      string
	AffinityGroup string
	// Subscription is recorded in the deployment settings file.
	Subscription   string
	RuntimeBaseURL string

	SkipUpload bool
	Launch     bool
	// Strict requires the deployment to be Running rather than Starting.
	Strict bool
}

// Recorder stores completed publishes.
type Recorder interface {
	Add(r *history.Record) error
}

// Result describes a successful publish.
type Result struct {
	Deployment     *mgmt.Deployment
	ServiceName    string
	Slot           string
	Action         string
	Scenario       probe.Scenario
	StorageAccount string
	PackageURL     string
	Package        *pkgbuild.Artifact
}

// Publisher composes the collaborators a publish needs.
type Publisher struct {
	Client  mgmt.Client
	Builder *pkgbuild.Builder
	// Prober defaults to a Prober over Client.
	Prober *probe.Prober
	Policy wait.Policy
	Log    zerolog.Logger
	// Out receives progress lines; nil discards them.
	Out io.Writer
	// Launch opens a URL in the browser when Options.Launch is set.
	Launch  func(url string) error
	History Recorder
}

// ParseSlot returns the canonical slot name for s, case-insensitively.
// An empty s means production.
func ParseSlot(s string) (string, error) {
	switch strings.ToLower(s) {
	case "", strings.ToLower(mgmt.SlotProduction):
		return mgmt.SlotProduction, nil
	case strings.ToLower(mgmt.SlotStaging):
		return mgmt.SlotStaging, nil
	}
	return "", fmt.Errorf("%w %q (want %s or %s)", ErrInvalidSlot, s, mgmt.SlotProduction, mgmt.SlotStaging)
}

// Publish publishes the service rooted at dir.
func (p *Publisher) Publish(ctx context.Context, dir string, opts Options) (*Result, error) {
	slot, err := ParseSlot(opts.Slot)
	if err != nil {
		return nil, err
	}

	svc, err := service.Load(dir)
	if err != nil {
		return nil, err
	}
	if svc.Rename(opts.ServiceName) {
		p.printf("\n✏️  Renaming service to %s...\n", svc.Name())
		if err := svc.Save(); err != nil {
			return nil, errors.Wrap(err, "saving renamed service")
		}
	}
	if svc.ResolveRuntimes(opts.RuntimeBaseURL) {
		if err := svc.Save(); err != nil {
			return nil, errors.Wrap(err, "saving runtime overrides")
		}
	}
	name := svc.Name()
	storageName := service.StorageAccountName(name)
	log := p.Log.With().Str("service", name).Str("slot", slot).Logger()

	p.printf("\n📦 Packaging %s...\n", name)
	builder := p.Builder
	if builder == nil {
		builder = &pkgbuild.Builder{}
	}
	art, err := builder.Build(svc)
	if err != nil {
		return nil, err
	}
	p.printf("   ✅ %s (%d bytes)\n", art.Path, art.Size)

	p.printf("\n🔍 Checking remote state...\n")
	prober := p.Prober
	if prober == nil {
		prober = &probe.Prober{Client: p.Client}
	}
	st, err := prober.Probe(ctx, name, storageName, slot)
	if err != nil {
		return nil, err
	}
	scenario := st.Scenario()
	log.Debug().Stringer("scenario", scenario).Stringer("storage", st.StorageState()).Msg("probed remote state")
	p.printf("   Hosted service: %s\n", scenario)
	p.printf("   Storage:        %s (%s)\n", storageName, st.StorageState())

	needsCreate := scenario == probe.ServiceAbsent || st.StorageState() == probe.StorageAbsent
	if needsCreate && opts.Location == "" && opts.AffinityGroup == "" {
		return nil, ErrLocationRequired
	}

	keys, err := p.ensureStorage(ctx, st, storageName, opts)
	if err != nil {
		return nil, err
	}
	svc.SetStorageConnection(storageName, keys.Primary)
	if err := svc.SaveCloudConfig(); err != nil {
		return nil, errors.Wrap(err, "saving storage connection string")
	}

	packageURL := art.Path
	if opts.SkipUpload {
		p.printf("\n⏭️  Skipping package upload\n")
	} else {
		p.printf("\n⬆️  Uploading package...\n")
		packageURL, err = p.Client.UploadPackage(ctx, storageName, keys.Primary, art.Path)
		if err != nil {
			return nil, &MutationError{Step: "upload package", Err: err}
		}
	}

	config, err := svc.ConfigurationBytes()
	if err != nil {
		return nil, errors.Wrap(err, "serializing cloud configuration")
	}
	now := p.clockNow()
	req := &mgmt.DeploymentRequest{
		Name:            uuid.NewString(),
		PackageURL:      packageURL,
		Label:           fmt.Sprintf("%s %s", name, now.UTC().Format(time.RFC3339)),
		Configuration:   config,
		StartDeployment: true,
		Mode:            "Auto",
	}

	if scenario == probe.ServiceAbsent {
		p.printf("\n🏗️  Creating hosted service %s...\n", name)
		err := p.Client.CreateHostedService(ctx, &mgmt.CreateHostedServiceInput{
			ServiceName:   name,
			Label:         name,
			Location:      opts.Location,
			AffinityGroup: opts.AffinityGroup,
		})
		if err != nil {
			return nil, &MutationError{Step: "create hosted service", Err: err}
		}
	}

	if err := p.checkCertificates(ctx, name, svc.Cloud.Thumbprints()); err != nil {
		return nil, err
	}

	action := ActionCreate
	if scenario == probe.DeploymentExists {
		action = ActionUpgrade
		if st.Deployment != nil && st.Deployment.Name != "" {
			req.Name = st.Deployment.Name
		}
		p.printf("\n🔄 Upgrading %s deployment...\n", slot)
		if err := p.Client.UpgradeDeployment(ctx, name, slot, req); err != nil {
			return nil, &MutationError{Step: "upgrade deployment", Err: err}
		}
	} else {
		p.printf("\n🚀 Creating %s deployment...\n", slot)
		if err := p.Client.CreateOrUpdateDeployment(ctx, name, slot, req); err != nil {
			return nil, &MutationError{Step: "create deployment", Err: err}
		}
	}

	p.printf("\n⏳ Waiting for role instances to be ready...\n")
	d, err := wait.Until(ctx, p.policy(log), func(ctx context.Context) (*mgmt.Deployment, error) {
		return p.Client.GetDeploymentBySlot(ctx, name, slot)
	}, DeploymentReady(opts.Strict))
	if err != nil {
		return nil, errors.Wrapf(err, "waiting for %s deployment", slot)
	}
	p.printf("   ✅ Deployment %s\n", d.Status)

	res := &Result{
		Deployment:     d,
		ServiceName:    name,
		Slot:           slot,
		Action:         action,
		Scenario:       scenario,
		StorageAccount: storageName,
		PackageURL:     packageURL,
		Package:        art,
	}
	p.record(svc, res, req, opts, now, log)

	if opts.Launch && p.Launch != nil && d.URL != "" {
		if err := p.Launch(d.URL); err != nil {
			log.Warn().Err(err).Str("url", d.URL).Msg("could not launch browser")
		}
	}
	return res, nil
}

// ensureStorage creates the storage account if needed, waits until it is
// Created and returns its keys.
func (p *Publisher) ensureStorage(ctx context.Context, st *probe.State, name string, opts Options) (*mgmt.StorageKeys, error) {
	switch st.StorageState() {
	case probe.StorageAbsent:
		p.printf("\n🗄️  Creating storage account %s...\n", name)
		err := p.Client.CreateStorageService(ctx, &mgmt.CreateStorageServiceInput{
			ServiceName:   name,
			Label:         name,
			Location:      opts.Location,
			AffinityGroup: opts.AffinityGroup,
		})
		if err != nil {
			return nil, &MutationError{Step: "create storage account", Err: err}
		}
		fallthrough
	case probe.StoragePending:
		p.printf("   Waiting for storage account %s...\n", name)
		_, err := wait.Until(ctx, p.policy(p.Log.With().Str("storage", name).Logger()), func(ctx context.Context) (*mgmt.StorageService, error) {
			return p.Client.GetStorageServiceDetails(ctx, name)
		}, StorageReady)
		if err != nil {
			return nil, errors.Wrapf(err, "waiting for storage account %s", name)
		}
		p.printf("   ✅ Storage account ready\n")
	}

	keys, err := p.Client.GetStorageServiceKeys(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "getting keys of storage account %s", name)
	}
	return keys, nil
}

// checkCertificates fails if any thumbprint is not uploaded to the service.
func (p *Publisher) checkCertificates(ctx context.Context, service string, thumbprints []string) error {
	if len(thumbprints) == 0 {
		return nil
	}
	certs, err := p.Client.ListCertificates(ctx, service)
	if err != nil {
		return errors.Wrapf(err, "listing certificates of %s", service)
	}
	have := make(map[string]bool, len(certs))
	for _, c := range certs {
		have[strings.ToUpper(c.Thumbprint)] = true
	}
	var missing []string
	for _, t := range thumbprints {
		if !have[strings.ToUpper(t)] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCertificate, strings.Join(missing, ", "))
	}
	return nil
}

// record saves the deployment settings and history. Failures are logged
// since the deployment itself succeeded.
func (p *Publisher) record(svc *service.Service, res *Result, req *mgmt.DeploymentRequest, opts Options, now time.Time, log zerolog.Logger) {
	settings := &service.DeploymentSettings{
		Subscription:   opts.Subscription,
		ServiceName:    res.ServiceName,
		Slot:           res.Slot,
		Location:       opts.Location,
		AffinityGroup:  opts.AffinityGroup,
		StorageAccount: res.StorageAccount,
		DeploymentName: req.Name,
		DeploymentURL:  res.Deployment.URL,
		PublishedAt:    now.UTC().Format(time.RFC3339),
	}
	if err := service.SaveSettings(svc.Path(service.SettingsFile), settings); err != nil {
		log.Warn().Err(err).Msg("could not save deployment settings")
	}

	if p.History == nil {
		return
	}
	err := p.History.Add(&history.Record{
		ServiceName:    res.ServiceName,
		Slot:           res.Slot,
		Action:         res.Action,
		DeploymentName: req.Name,
		Label:          req.Label,
		PackageURL:     res.PackageURL,
		Status:         res.Deployment.Status,
		URL:            res.Deployment.URL,
		PublishedAt:    now,
	})
	if err != nil {
		log.Warn().Err(err).Msg("could not record publish history")
	}
}

func (p *Publisher) policy(log zerolog.Logger) wait.Policy {
	pol := p.Policy
	pol.Log = log
	return pol
}

func (p *Publisher) clockNow() time.Time {
	if p.Policy.Clock != nil {
		return p.Policy.Clock.Now()
	}
	return time.Now()
}

func (p *Publisher) printf(format string, a ...any) {
	if p.Out != nil {
		fmt.Fprintf(p.Out, format, a...)
	}
}
