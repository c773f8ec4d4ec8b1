// Package memory is an in-process cloud used by tests and local development.
// Faults and latency can be injected per operation.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"vmjobs/internal/cloud"
)

// Operation names accepted by FailOn and Calls.
const (
	OpGetVM                 = "GetVM"
	OpSnapshotDisk          = "SnapshotDisk"
	OpEnsureGallery         = "EnsureGallery"
	OpEnsureImageDefinition = "EnsureImageDefinition"
	OpListImageVersions     = "ListImageVersions"
	OpCreateImageVersion    = "CreateImageVersion"
	OpListSnapshots         = "ListSnapshots"
	OpRevokeSnapshotAccess  = "RevokeSnapshotAccess"
	OpDeleteSnapshot        = "DeleteSnapshot"
	OpImageExists           = "ImageExists"
	OpCreateNetwork         = "CreateNetwork"
	OpDeleteNetwork         = "DeleteNetwork"
	OpCreateVM              = "CreateVM"
	OpWaitForVM             = "WaitForVM"
	OpStartSetup            = "StartSetup"
	OpDeleteVM              = "DeleteVM"
)

type fault struct {
	err       error
	remaining int // <0 means forever
}

// Provider implements cloud.Provider in memory. It is safe for concurrent use.
type Provider struct {
	mu        sync.Mutex
	seq       int
	vms       map[string]*cloud.VM       // rg/name
	snapshots map[string]*cloud.Snapshot // rg/name
	galleries map[string]*cloud.Gallery  // rg/name
	defs      map[string]*cloud.ImageDefinition
	versions  map[string][]string // rg/gallery/definition
	images    map[string]bool
	networks  map[string]*cloud.Network
	setups    map[string]string // vm ID -> script
	faults    map[string]*fault // op or op/key
	calls     map[string]int
	latency   time.Duration
}

// New creates an empty cloud. The images "ubuntu-24.04" and "windows-10"
// exist from the start.
func New() *Provider {
	return &Provider{
		vms:       make(map[string]*cloud.VM),
		snapshots: make(map[string]*cloud.Snapshot),
		galleries: make(map[string]*cloud.Gallery),
		defs:      make(map[string]*cloud.ImageDefinition),
		versions:  make(map[string][]string),
		images:    map[string]bool{"ubuntu-24.04": true, "windows-10": true},
		networks:  make(map[string]*cloud.Network),
		setups:    make(map[string]string),
		faults:    make(map[string]*fault),
		calls:     make(map[string]int),
	}
}

func key(parts ...string) string {
	k := parts[0]
	for _, p := range parts[1:] {
		k += "/" + p
	}
	return k
}

func (p *Provider) nextID(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s-%04d", prefix, p.seq)
}

// SetLatency delays every operation by d (honouring context cancellation).
func (p *Provider) SetLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = d
}

// FailOn makes op return err. A non-empty target limits the fault to calls
// whose resource name equals target. times < 0 fails forever.
func (p *Provider) FailOn(op, target string, err error, times int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := op
	if target != "" {
		k = key(op, target)
	}
	p.faults[k] = &fault{err: err, remaining: times}
}

// Calls reports how many times op was invoked.
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// AddVM seeds a VM.
func (p *Provider) AddVM(resourceGroup, name, location string) *cloud.VM {
	p.mu.Lock()
	defer p.mu.Unlock()
	vm := &cloud.VM{
		ID:            p.nextID("vm"),
		Name:          name,
		ResourceGroup: resourceGroup,
		Location:      location,
		State:         "running",
		OSDiskID:      p.nextID("disk"),
	}
	p.vms[key(resourceGroup, name)] = vm
	return cloneVM(vm)
}

// AddSnapshots seeds snapshots in a resource group.
func (p *Provider) AddSnapshots(resourceGroup string, names ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range names {
		p.snapshots[key(resourceGroup, n)] = &cloud.Snapshot{
			ID:            p.nextID("snap"),
			Name:          n,
			ResourceGroup: resourceGroup,
			CreatedAt:     time.Now().UTC(),
		}
	}
}

// AddImageVersions seeds existing versions of an image definition.
func (p *Provider) AddImageVersions(resourceGroup, gallery, definition string, versions ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(resourceGroup, gallery, definition)
	p.versions[k] = append(p.versions[k], versions...)
}

// AddImage makes an image available to CreateVM.
func (p *Provider) AddImage(image string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images[image] = true
}

// SnapshotNames lists the snapshots left in a resource group, sorted.
func (p *Provider) SnapshotNames(resourceGroup string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, s := range p.snapshots {
		if s.ResourceGroup == resourceGroup {
			out = append(out, s.Name)
		}
	}
	slices.Sort(out)
	return out
}

// ImageVersions returns the versions recorded for a definition.
func (p *Provider) ImageVersions(resourceGroup, gallery, definition string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.versions[key(resourceGroup, gallery, definition)])
}

// HasVM reports whether a VM exists.
func (p *Provider) HasVM(resourceGroup, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.vms[key(resourceGroup, name)]
	return ok
}

// HasNetwork reports whether a network exists.
func (p *Provider) HasNetwork(resourceGroup, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.networks[key(resourceGroup, name)]
	return ok
}

// SetupScript returns the script handed to StartSetup for a VM.
func (p *Provider) SetupScript(vmID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.setups[vmID]
	return s, ok
}

// enter counts the call, applies latency and returns any injected fault.
func (p *Provider) enter(ctx context.Context, op, target string) error {
	p.mu.Lock()
	p.calls[op]++
	latency := p.latency
	var err error
	for _, k := range []string{key(op, target), op} {
		f, ok := p.faults[k]
		if !ok || f.remaining == 0 {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
		}
		err = f.err
		break
	}
	p.mu.Unlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Provider) GetVM(ctx context.Context, resourceGroup, name string) (*cloud.VM, error) {
	if err := p.enter(ctx, OpGetVM, name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	vm, ok := p.vms[key(resourceGroup, name)]
	if !ok {
		return nil, cloud.NotFound("vm", name)
	}
	return cloneVM(vm), nil
}

func (p *Provider) SnapshotDisk(ctx context.Context, vm *cloud.VM, snapshotName string) (*cloud.Snapshot, error) {
	if err := p.enter(ctx, OpSnapshotDisk, snapshotName); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &cloud.Snapshot{
		ID:            p.nextID("snap"),
		Name:          snapshotName,
		ResourceGroup: vm.ResourceGroup,
		SourceDiskID:  vm.OSDiskID,
		CreatedAt:     time.Now().UTC(),
	}
	p.snapshots[key(vm.ResourceGroup, snapshotName)] = s
	out := *s
	return &out, nil
}

func (p *Provider) EnsureGallery(ctx context.Context, resourceGroup, name, location string) (*cloud.Gallery, error) {
	if err := p.enter(ctx, OpEnsureGallery, name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(resourceGroup, name)
	g, ok := p.galleries[k]
	if !ok {
		g = &cloud.Gallery{ID: p.nextID("gallery"), Name: name, ResourceGroup: resourceGroup, Location: location}
		p.galleries[k] = g
	}
	out := *g
	return &out, nil
}

func (p *Provider) EnsureImageDefinition(ctx context.Context, spec cloud.ImageDefinitionSpec) (*cloud.ImageDefinition, error) {
	if err := p.enter(ctx, OpEnsureImageDefinition, spec.Name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.galleries[key(spec.ResourceGroup, spec.Gallery)]; !ok {
		return nil, cloud.NotFound("gallery", spec.Gallery)
	}
	k := key(spec.ResourceGroup, spec.Gallery, spec.Name)
	d, ok := p.defs[k]
	if !ok {
		d = &cloud.ImageDefinition{
			ID:        p.nextID("imgdef"),
			Gallery:   spec.Gallery,
			Name:      spec.Name,
			Publisher: spec.Publisher,
			Offer:     spec.Offer,
			SKU:       spec.SKU,
		}
		p.defs[k] = d
	}
	out := *d
	return &out, nil
}

func (p *Provider) ListImageVersions(ctx context.Context, resourceGroup, gallery, definition string) ([]string, error) {
	if err := p.enter(ctx, OpListImageVersions, definition); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.versions[key(resourceGroup, gallery, definition)]), nil
}

func (p *Provider) CreateImageVersion(ctx context.Context, spec cloud.ImageVersionSpec) (*cloud.ImageVersion, error) {
	if err := p.enter(ctx, OpCreateImageVersion, spec.Version); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(spec.ResourceGroup, spec.Gallery, spec.Definition)
	if slices.Contains(p.versions[k], spec.Version) {
		return nil, cloud.AlreadyExists("image version", spec.Definition+"/"+spec.Version)
	}
	p.versions[k] = append(p.versions[k], spec.Version)
	return &cloud.ImageVersion{ID: p.nextID("imgver"), Definition: spec.Definition, Version: spec.Version}, nil
}

func (p *Provider) ListSnapshots(ctx context.Context, resourceGroup string) ([]cloud.Snapshot, error) {
	if err := p.enter(ctx, OpListSnapshots, resourceGroup); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []cloud.Snapshot
	for _, s := range p.snapshots {
		if s.ResourceGroup == resourceGroup {
			out = append(out, *s)
		}
	}
	slices.SortFunc(out, func(a, b cloud.Snapshot) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

func (p *Provider) RevokeSnapshotAccess(ctx context.Context, resourceGroup, name string) error {
	if err := p.enter(ctx, OpRevokeSnapshotAccess, name); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.snapshots[key(resourceGroup, name)]; !ok {
		return cloud.NotFound("snapshot", name)
	}
	return nil
}

func (p *Provider) DeleteSnapshot(ctx context.Context, resourceGroup, name string) error {
	if err := p.enter(ctx, OpDeleteSnapshot, name); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(resourceGroup, name)
	if _, ok := p.snapshots[k]; !ok {
		return cloud.NotFound("snapshot", name)
	}
	delete(p.snapshots, k)
	return nil
}

func (p *Provider) ImageExists(ctx context.Context, image string) (bool, error) {
	if err := p.enter(ctx, OpImageExists, image); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.images[image], nil
}

func (p *Provider) CreateNetwork(ctx context.Context, spec cloud.NetworkSpec) (*cloud.Network, error) {
	if err := p.enter(ctx, OpCreateNetwork, spec.Name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(spec.ResourceGroup, spec.Name)
	if n, ok := p.networks[k]; ok {
		out := *n
		return &out, nil
	}
	n := &cloud.Network{ID: p.nextID("net"), Name: spec.Name}
	p.networks[k] = n
	out := *n
	return &out, nil
}

func (p *Provider) DeleteNetwork(ctx context.Context, resourceGroup, name string) error {
	if err := p.enter(ctx, OpDeleteNetwork, name); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(resourceGroup, name)
	if _, ok := p.networks[k]; !ok {
		return cloud.NotFound("network", name)
	}
	delete(p.networks, k)
	return nil
}

func (p *Provider) CreateVM(ctx context.Context, spec cloud.VMSpec) (*cloud.VM, error) {
	if err := p.enter(ctx, OpCreateVM, spec.Name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.images[spec.Image] {
		return nil, cloud.NotFound("image", spec.Image)
	}
	k := key(spec.ResourceGroup, spec.Name)
	if _, ok := p.vms[k]; ok {
		return nil, cloud.AlreadyExists("vm", spec.Name)
	}
	vm := &cloud.VM{
		ID:            p.nextID("vm"),
		Name:          spec.Name,
		ResourceGroup: spec.ResourceGroup,
		Location:      spec.Location,
		State:         "creating",
		OSDiskID:      p.nextID("disk"),
		PublicIP:      fmt.Sprintf("203.0.113.%d", p.seq%250+1),
		Tags:          maps.Clone(spec.Tags),
	}
	p.vms[k] = vm
	return cloneVM(vm), nil
}

func (p *Provider) WaitForVM(ctx context.Context, resourceGroup, name string) (*cloud.VM, error) {
	if err := p.enter(ctx, OpWaitForVM, name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	vm, ok := p.vms[key(resourceGroup, name)]
	if !ok {
		return nil, cloud.NotFound("vm", name)
	}
	vm.State = "running"
	return cloneVM(vm), nil
}

func (p *Provider) StartSetup(ctx context.Context, vm *cloud.VM, script string) error {
	if err := p.enter(ctx, OpStartSetup, vm.Name); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setups[vm.ID] = script
	return nil
}

func (p *Provider) DeleteVM(ctx context.Context, resourceGroup, name string) error {
	if err := p.enter(ctx, OpDeleteVM, name); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(resourceGroup, name)
	if _, ok := p.vms[k]; !ok {
		return cloud.NotFound("vm", name)
	}
	delete(p.vms, k)
	return nil
}

// Ready always succeeds.
func (p *Provider) Ready(context.Context) error { return nil }

// Close is a no-op.
func (p *Provider) Close() error { return nil }

func cloneVM(vm *cloud.VM) *cloud.VM {
	out := *vm
	out.Tags = maps.Clone(vm.Tags)
	return &out
}

var _ cloud.Provider = (*Provider)(nil)
