// Package docker implements cloud.Provider on a Docker daemon. Containers
// stand in for VMs, committed images for snapshots and image tags for
// gallery image versions. It is meant for local development and CI.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"vmjobs/internal/cloud"
)

// Location is reported for every resource.
const Location = "local"

// Provider implements cloud.Provider using Docker.
type Provider struct {
	client       *client.Client
	aliases      map[string]string
	pollInterval time.Duration
	logger       *slog.Logger
	setups       *setupRepo
}

// Config holds configuration for the Docker provider.
type Config struct {
	BaseImage    string            // Docker image behind the default OS image names (default ubuntu:24.04)
	Aliases      map[string]string // Extra cloud image names mapped to Docker images
	PollInterval time.Duration     // How often WaitForVM inspects the container (default 500ms)
	Logger       *slog.Logger
}

// New connects to the Docker daemon from the environment.
func New(cfg Config) (*Provider, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	base := cfg.BaseImage
	if base == "" {
		base = "ubuntu:24.04"
	}
	aliases := map[string]string{"ubuntu-24.04": base}
	maps.Copy(aliases, cfg.Aliases)

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		client:       dockerClient,
		aliases:      aliases,
		pollInterval: pollInterval,
		logger:       logger.With("component", "cloud", "provider", "docker"),
		setups:       newSetupRepo(),
	}, nil
}

func (p *Provider) resolveImage(name string) string {
	if img, ok := p.aliases[name]; ok {
		return img
	}
	return name
}

func notFound(err error, kind, name string) error {
	if cerrdefs.IsNotFound(err) {
		return cloud.NotFound(kind, name)
	}
	return err
}

func (p *Provider) GetVM(ctx context.Context, resourceGroup, name string) (*cloud.VM, error) {
	inspect, err := p.client.ContainerInspect(ctx, containerName(resourceGroup, name))
	if err != nil {
		return nil, notFound(err, "vm", name)
	}
	return vmFromInspect(inspect), nil
}

func vmFromInspect(inspect container.InspectResponse) *cloud.VM {
	vm := &cloud.VM{
		ID:       inspect.ID,
		OSDiskID: inspect.ID,
		Location: Location,
		Tags:     make(map[string]string),
	}
	if inspect.Config != nil {
		vm.Name = inspect.Config.Labels[LabelName]
		vm.ResourceGroup = inspect.Config.Labels[LabelGroup]
		for k, v := range inspect.Config.Labels {
			if tag, ok := strings.CutPrefix(k, LabelTagPrefix); ok {
				vm.Tags[tag] = v
			}
		}
	}
	if inspect.State != nil {
		vm.State = inspect.State.Status
	}
	if inspect.NetworkSettings != nil {
		for _, ep := range inspect.NetworkSettings.Networks {
			if ep != nil && ep.IPAddress != "" {
				vm.PublicIP = ep.IPAddress
				break
			}
		}
	}
	return vm
}

func (p *Provider) SnapshotDisk(ctx context.Context, vm *cloud.VM, snapshotName string) (*cloud.Snapshot, error) {
	ref := snapshotRepo(vm.ResourceGroup, snapshotName) + ":latest"
	resp, err := p.client.ContainerCommit(ctx, vm.ID, container.CommitOptions{
		Reference: ref,
		Comment:   "snapshot of " + vm.Name,
		Pause:     true,
		Changes: []string{
			fmt.Sprintf("LABEL %s=true %s=%s %s=%s %s=%s", LabelManaged,
				LabelKind, kindSnapshot, LabelGroup, strconv.Quote(vm.ResourceGroup), LabelName, strconv.Quote(snapshotName)),
		},
	})
	if err != nil {
		return nil, notFound(err, "vm", vm.Name)
	}
	return &cloud.Snapshot{
		ID:            resp.ID,
		Name:          snapshotName,
		ResourceGroup: vm.ResourceGroup,
		SourceDiskID:  vm.OSDiskID,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// EnsureGallery has nothing to create: a gallery is the first path
// component of its image repositories.
func (p *Provider) EnsureGallery(_ context.Context, resourceGroup, name, location string) (*cloud.Gallery, error) {
	return &cloud.Gallery{ID: component(name), Name: name, ResourceGroup: resourceGroup, Location: location}, nil
}

// EnsureImageDefinition has nothing to create: a definition is an image
// repository that exists once its first version is tagged.
func (p *Provider) EnsureImageDefinition(_ context.Context, spec cloud.ImageDefinitionSpec) (*cloud.ImageDefinition, error) {
	return &cloud.ImageDefinition{
		ID:        definitionRepo(spec.Gallery, spec.Name),
		Gallery:   spec.Gallery,
		Name:      spec.Name,
		Publisher: spec.Publisher,
		Offer:     spec.Offer,
		SKU:       spec.SKU,
	}, nil
}

func (p *Provider) ListImageVersions(ctx context.Context, _, gallery, definition string) ([]string, error) {
	repo := definitionRepo(gallery, definition)
	images, err := p.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", repo)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	var versions []string
	for _, img := range images {
		versions = append(versions, versionsFromTags(repo, img.RepoTags)...)
	}
	slices.Sort(versions)
	return slices.Compact(versions), nil
}

func (p *Provider) CreateImageVersion(ctx context.Context, spec cloud.ImageVersionSpec) (*cloud.ImageVersion, error) {
	repo := definitionRepo(spec.Gallery, spec.Definition)
	existing, err := p.ListImageVersions(ctx, spec.ResourceGroup, spec.Gallery, spec.Definition)
	if err != nil {
		return nil, err
	}
	if slices.Contains(existing, spec.Version) {
		return nil, cloud.AlreadyExists("image version", repo+":"+spec.Version)
	}
	if err := p.client.ImageTag(ctx, spec.SnapshotID, repo+":"+spec.Version); err != nil {
		return nil, notFound(err, "snapshot", spec.SnapshotID)
	}
	return &cloud.ImageVersion{ID: repo + ":" + spec.Version, Definition: spec.Definition, Version: spec.Version}, nil
}

func (p *Provider) ListSnapshots(ctx context.Context, resourceGroup string) ([]cloud.Snapshot, error) {
	images, err := p.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("label", LabelKind+"="+kindSnapshot),
			filters.Arg("label", LabelGroup+"="+resourceGroup),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	out := make([]cloud.Snapshot, 0, len(images))
	for _, img := range images {
		out = append(out, cloud.Snapshot{
			ID:            img.ID,
			Name:          img.Labels[LabelName],
			ResourceGroup: resourceGroup,
			CreatedAt:     time.Unix(img.Created, 0).UTC(),
		})
	}
	slices.SortFunc(out, func(a, b cloud.Snapshot) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// RevokeSnapshotAccess is a no-op: local images have no export grants.
func (p *Provider) RevokeSnapshotAccess(context.Context, string, string) error {
	return nil
}

func (p *Provider) DeleteSnapshot(ctx context.Context, resourceGroup, name string) error {
	ref := snapshotRepo(resourceGroup, name) + ":latest"
	if _, err := p.client.ImageRemove(ctx, ref, image.RemoveOptions{PruneChildren: true}); err != nil {
		return notFound(err, "snapshot", name)
	}
	return nil
}

// ImageExists pulls the image if it is not present locally.
func (p *Provider) ImageExists(ctx context.Context, name string) (bool, error) {
	err := p.pullImageIfNeeded(ctx, p.resolveImage(name))
	switch {
	case err == nil:
		return true, nil
	case cerrdefs.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

func (p *Provider) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := p.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	reader, err := p.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (p *Provider) CreateNetwork(ctx context.Context, spec cloud.NetworkSpec) (*cloud.Network, error) {
	name := networkName(spec.ResourceGroup, spec.Name)
	if existing, err := p.client.NetworkInspect(ctx, name, network.InspectOptions{}); err == nil {
		return &cloud.Network{ID: existing.ID, Name: spec.Name}, nil
	}

	l := labels(kindNetwork, spec.ResourceGroup, spec.Name)
	l[LabelPorts] = joinPorts(spec.Ports)
	resp, err := p.client.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: l,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}
	return &cloud.Network{ID: resp.ID, Name: spec.Name}, nil
}

func (p *Provider) DeleteNetwork(ctx context.Context, resourceGroup, name string) error {
	if err := p.client.NetworkRemove(ctx, networkName(resourceGroup, name)); err != nil {
		return notFound(err, "network", name)
	}
	return nil
}

// CreateVM starts a long-lived container attached to the VM's network and
// publishes the network's ports on random host ports.
func (p *Provider) CreateVM(ctx context.Context, spec cloud.VMSpec) (*cloud.VM, error) {
	img := p.resolveImage(spec.Image)
	if err := p.pullImageIfNeeded(ctx, img); err != nil {
		return nil, notFound(err, "image", spec.Image)
	}

	net, err := p.client.NetworkInspect(ctx, spec.NetworkID, network.InspectOptions{})
	if err != nil {
		return nil, notFound(err, "network", spec.NetworkID)
	}
	exposed, bindings := portMappings(splitPorts(net.Labels[LabelPorts]))

	l := labels(kindVM, spec.ResourceGroup, spec.Name)
	for k, v := range spec.Tags {
		l[LabelTagPrefix+k] = v
	}

	name := containerName(spec.ResourceGroup, spec.Name)
	resp, err := p.client.ContainerCreate(ctx,
		&container.Config{
			Image:        img,
			Hostname:     component(spec.Name),
			Cmd:          []string{"sleep", "infinity"},
			Labels:       l,
			ExposedPorts: exposed,
		},
		&container.HostConfig{
			NetworkMode:  container.NetworkMode(net.Name),
			PortBindings: bindings,
		},
		nil, nil, name)
	if err != nil {
		if cerrdefs.IsConflict(err) {
			return nil, cloud.AlreadyExists("vm", spec.Name)
		}
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeContainer(context.WithoutCancel(ctx), resp.ID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	return &cloud.VM{
		ID:            resp.ID,
		Name:          spec.Name,
		ResourceGroup: spec.ResourceGroup,
		Location:      Location,
		State:         "created",
		OSDiskID:      resp.ID,
		Tags:          maps.Clone(spec.Tags),
	}, nil
}

func (p *Provider) WaitForVM(ctx context.Context, resourceGroup, name string) (*cloud.VM, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		vm, err := p.GetVM(ctx, resourceGroup, name)
		if err != nil {
			return nil, err
		}
		switch vm.State {
		case "running":
			return vm, nil
		case "exited", "dead":
			return nil, fmt.Errorf("container for vm %q is %s", name, vm.State)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// StartSetup runs the setup script in a detached exec. Only one setup may
// run per VM.
func (p *Provider) StartSetup(ctx context.Context, vm *cloud.VM, script string) error {
	if err := p.setups.reserve(vm.ID); err != nil {
		return err
	}
	exec, err := p.client.ContainerExecCreate(ctx, vm.ID, container.ExecOptions{
		User:   "0",
		Detach: true,
		Cmd:    []string{"/bin/bash", "-c", script},
	})
	if err != nil {
		p.setups.release(vm.ID)
		return fmt.Errorf("failed to create setup exec: %w", err)
	}
	if err := p.client.ContainerExecStart(ctx, exec.ID, container.ExecStartOptions{Detach: true}); err != nil {
		p.setups.release(vm.ID)
		return fmt.Errorf("failed to start setup exec: %w", err)
	}
	p.setups.commit(vm.ID, exec.ID)
	p.logger.Info("Setup started", "vm", vm.Name, "execId", exec.ID)
	return nil
}

func (p *Provider) DeleteVM(ctx context.Context, resourceGroup, name string) error {
	inspect, err := p.client.ContainerInspect(ctx, containerName(resourceGroup, name))
	if err != nil {
		return notFound(err, "vm", name)
	}
	p.setups.release(inspect.ID)
	return p.removeContainer(ctx, inspect.ID)
}

func (p *Provider) removeContainer(ctx context.Context, containerID string) error {
	stopTimeout := 10
	_ = p.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &stopTimeout})
	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Ready checks if the Docker daemon is reachable and responsive.
func (p *Provider) Ready(ctx context.Context) error {
	_, err := p.client.Ping(ctx)
	return err
}

// Close releases the Docker client.
func (p *Provider) Close() error {
	return p.client.Close()
}

func portMappings(ports []int) (nat.PortSet, nat.PortMap) {
	if len(ports) == 0 {
		return nil, nil
	}
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))
	for _, port := range ports {
		p := nat.Port(strconv.Itoa(port) + "/tcp")
		exposed[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostIP: "127.0.0.1"}}
	}
	return exposed, bindings
}

func joinPorts(ports []int) string {
	s := make([]string, len(ports))
	for i, p := range ports {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ",")
}

func splitPorts(s string) []int {
	var out []int
	for _, f := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(f)); err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}

var _ cloud.Provider = (*Provider)(nil)
