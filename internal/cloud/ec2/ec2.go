// Package ec2 implements cloud.Provider on Amazon EC2.
//
// EC2 has no resource groups or image galleries, so both are tag
// namespaces: every resource carries a ResourceGroup tag, and image versions
// are AMIs tagged with Gallery, ImageDefinition and Version.
package ec2

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"vmjobs/internal/cloud"
)

// Tag keys.
const (
	TagName            = "Name"
	TagResourceGroup   = "ResourceGroup"
	TagGallery         = "Gallery"
	TagImageDefinition = "ImageDefinition"
	TagVersion         = "Version"
	TagPublisher       = "Publisher"
	TagOffer           = "Offer"
	TagSKU             = "SKU"
	TagSetupStarted    = "SetupStarted"
	TagManagedBy       = "ManagedBy"

	managedBy = "vmjobs"
)

// ImageAlias resolves a friendly image name to the newest AMI matching a
// name pattern published by Owner.
type ImageAlias struct {
	Owner       string
	NamePattern string
}

// DefaultAliases maps the provider-neutral image names to public AMIs.
var DefaultAliases = map[string]ImageAlias{
	"ubuntu-24.04": {Owner: "099720109477", NamePattern: "ubuntu/images/hvm-ssd-gp3/ubuntu-noble-24.04-amd64-server-*"},
	"windows-10":   {Owner: "amazon", NamePattern: "Windows_Server-2022-English-Full-Base-*"},
}

var _ cloud.Provider = (*Provider)(nil)

// Provider implements cloud.Provider using EC2.
type Provider struct {
	api         API
	region      string
	vpcID       string
	aliases     map[string]ImageAlias
	waitTimeout time.Duration
	logger      *slog.Logger
}

// Config holds configuration for the EC2 provider.
type Config struct {
	Region      string        // empty uses the SDK default chain
	VPCID       string        // security groups go to the default VPC when empty
	WaitTimeout time.Duration // upper bound for instance and snapshot waiters (default 30m)
	Aliases     map[string]ImageAlias
	Logger      *slog.Logger
}

// New loads AWS credentials from the environment and creates a provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	cfg.Region = awsCfg.Region
	return NewWithAPI(ec2.NewFromConfig(awsCfg), cfg), nil
}

// NewWithAPI creates a provider around an existing client.
func NewWithAPI(api API, cfg Config) *Provider {
	aliases := maps.Clone(DefaultAliases)
	maps.Copy(aliases, cfg.Aliases)
	waitTimeout := cfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		api:         api,
		region:      cfg.Region,
		vpcID:       cfg.VPCID,
		aliases:     aliases,
		waitTimeout: waitTimeout,
		logger:      logger.With("component", "cloud", "provider", "ec2"),
	}
}

func filter(name string, values ...string) types.Filter {
	return types.Filter{Name: aws.String(name), Values: values}
}

func tagFilter(key string, values ...string) types.Filter {
	return filter("tag:"+key, values...)
}

func tagSpec(rt types.ResourceType, tags map[string]string) []types.TagSpecification {
	keys := slices.Sorted(maps.Keys(tags))
	out := make([]types.Tag, 0, len(keys)+1)
	for _, k := range keys {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	out = append(out, types.Tag{Key: aws.String(TagManagedBy), Value: aws.String(managedBy)})
	return []types.TagSpecification{{ResourceType: rt, Tags: out}}
}

func tagMap(tags []types.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return m
}

// apiErrorCode returns the EC2 error code, or "".
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isNotFoundCode(err error) bool {
	code := apiErrorCode(err)
	return strings.HasSuffix(code, ".NotFound") || strings.HasSuffix(code, ".Malformed")
}

var liveStates = []string{"pending", "running", "stopping", "stopped"}

// findInstance returns the live instance tagged with rg and name.
func (p *Provider) findInstance(ctx context.Context, resourceGroup, name string) (*types.Instance, error) {
	out, err := p.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			tagFilter(TagResourceGroup, resourceGroup),
			tagFilter(TagName, name),
			filter("instance-state-name", liveStates...),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances: %w", err)
	}
	for _, r := range out.Reservations {
		for i := range r.Instances {
			return &r.Instances[i], nil
		}
	}
	return nil, cloud.NotFound("vm", name)
}

func vmFromInstance(inst *types.Instance) *cloud.VM {
	tags := tagMap(inst.Tags)
	vm := &cloud.VM{
		ID:            aws.ToString(inst.InstanceId),
		Name:          tags[TagName],
		ResourceGroup: tags[TagResourceGroup],
		PublicIP:      aws.ToString(inst.PublicIpAddress),
		Tags:          tags,
	}
	if inst.State != nil {
		vm.State = string(inst.State.Name)
	}
	if inst.Placement != nil {
		vm.Location = aws.ToString(inst.Placement.AvailabilityZone)
	}
	root := aws.ToString(inst.RootDeviceName)
	for _, bdm := range inst.BlockDeviceMappings {
		if aws.ToString(bdm.DeviceName) == root && bdm.Ebs != nil {
			vm.OSDiskID = aws.ToString(bdm.Ebs.VolumeId)
		}
	}
	return vm
}

func (p *Provider) GetVM(ctx context.Context, resourceGroup, name string) (*cloud.VM, error) {
	inst, err := p.findInstance(ctx, resourceGroup, name)
	if err != nil {
		return nil, err
	}
	return vmFromInstance(inst), nil
}

func (p *Provider) SnapshotDisk(ctx context.Context, vm *cloud.VM, snapshotName string) (*cloud.Snapshot, error) {
	if vm.OSDiskID == "" {
		return nil, fmt.Errorf("vm %q has no root EBS volume", vm.Name)
	}
	out, err := p.api.CreateSnapshot(ctx, &ec2.CreateSnapshotInput{
		VolumeId:    aws.String(vm.OSDiskID),
		Description: aws.String("OS disk snapshot of " + vm.Name),
		TagSpecifications: tagSpec(types.ResourceTypeSnapshot, map[string]string{
			TagName:          snapshotName,
			TagResourceGroup: vm.ResourceGroup,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}
	id := aws.ToString(out.SnapshotId)

	waiter := ec2.NewSnapshotCompletedWaiter(p.api)
	if err := waiter.Wait(ctx, &ec2.DescribeSnapshotsInput{SnapshotIds: []string{id}}, p.waitTimeout); err != nil {
		return nil, fmt.Errorf("snapshot %s did not complete: %w", id, err)
	}
	return &cloud.Snapshot{
		ID:            id,
		Name:          snapshotName,
		ResourceGroup: vm.ResourceGroup,
		SourceDiskID:  vm.OSDiskID,
		CreatedAt:     aws.ToTime(out.StartTime),
	}, nil
}

// EnsureGallery only names a tag namespace.
func (p *Provider) EnsureGallery(_ context.Context, resourceGroup, name, location string) (*cloud.Gallery, error) {
	return &cloud.Gallery{ID: name, Name: name, ResourceGroup: resourceGroup, Location: location}, nil
}

// EnsureImageDefinition only names a tag namespace. Publisher, offer and SKU
// are stamped on each version.
func (p *Provider) EnsureImageDefinition(_ context.Context, spec cloud.ImageDefinitionSpec) (*cloud.ImageDefinition, error) {
	return &cloud.ImageDefinition{
		ID:        spec.Gallery + "/" + spec.Name,
		Gallery:   spec.Gallery,
		Name:      spec.Name,
		Publisher: spec.Publisher,
		Offer:     spec.Offer,
		SKU:       spec.SKU,
	}, nil
}

func (p *Provider) ListImageVersions(ctx context.Context, resourceGroup, gallery, definition string) ([]string, error) {
	out, err := p.api.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{"self"},
		Filters: []types.Filter{
			tagFilter(TagResourceGroup, resourceGroup),
			tagFilter(TagGallery, gallery),
			tagFilter(TagImageDefinition, definition),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe images: %w", err)
	}
	versions := make([]string, 0, len(out.Images))
	for _, img := range out.Images {
		if v := tagMap(img.Tags)[TagVersion]; v != "" {
			versions = append(versions, v)
		}
	}
	slices.Sort(versions)
	return slices.Compact(versions), nil
}

func (p *Provider) CreateImageVersion(ctx context.Context, spec cloud.ImageVersionSpec) (*cloud.ImageVersion, error) {
	existing, err := p.ListImageVersions(ctx, spec.ResourceGroup, spec.Gallery, spec.Definition)
	if err != nil {
		return nil, err
	}
	if slices.Contains(existing, spec.Version) {
		return nil, cloud.AlreadyExists("image version", spec.Definition+"/"+spec.Version)
	}

	name := fmt.Sprintf("%s-%s-%s", spec.Gallery, spec.Definition, spec.Version)
	out, err := p.api.RegisterImage(ctx, &ec2.RegisterImageInput{
		Name:               aws.String(name),
		Architecture:       types.ArchitectureValuesX8664,
		RootDeviceName:     aws.String("/dev/xvda"),
		VirtualizationType: aws.String("hvm"),
		EnaSupport:         aws.Bool(true),
		BlockDeviceMappings: []types.BlockDeviceMapping{{
			DeviceName: aws.String("/dev/xvda"),
			Ebs: &types.EbsBlockDevice{
				SnapshotId:          aws.String(spec.SnapshotID),
				DeleteOnTermination: aws.Bool(true),
				VolumeType:          types.VolumeTypeGp3,
			},
		}},
		TagSpecifications: tagSpec(types.ResourceTypeImage, map[string]string{
			TagName:            name,
			TagResourceGroup:   spec.ResourceGroup,
			TagGallery:         spec.Gallery,
			TagImageDefinition: spec.Definition,
			TagVersion:         spec.Version,
		}),
	})
	if err != nil {
		if apiErrorCode(err) == "InvalidAMIName.Duplicate" {
			return nil, cloud.AlreadyExists("image version", name)
		}
		return nil, fmt.Errorf("failed to register image: %w", err)
	}
	return &cloud.ImageVersion{ID: aws.ToString(out.ImageId), Definition: spec.Definition, Version: spec.Version}, nil
}

func (p *Provider) ListSnapshots(ctx context.Context, resourceGroup string) ([]cloud.Snapshot, error) {
	pager := ec2.NewDescribeSnapshotsPaginator(p.api, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
		Filters:  []types.Filter{tagFilter(TagResourceGroup, resourceGroup)},
	})
	var out []cloud.Snapshot
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe snapshots: %w", err)
		}
		for _, s := range page.Snapshots {
			name := tagMap(s.Tags)[TagName]
			if name == "" {
				name = aws.ToString(s.SnapshotId)
			}
			out = append(out, cloud.Snapshot{
				ID:            aws.ToString(s.SnapshotId),
				Name:          name,
				ResourceGroup: resourceGroup,
				SourceDiskID:  aws.ToString(s.VolumeId),
				CreatedAt:     aws.ToTime(s.StartTime),
			})
		}
	}
	slices.SortFunc(out, func(a, b cloud.Snapshot) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// findSnapshot resolves a snapshot by Name tag, falling back to its ID.
func (p *Provider) findSnapshot(ctx context.Context, resourceGroup, name string) (string, error) {
	snaps, err := p.ListSnapshots(ctx, resourceGroup)
	if err != nil {
		return "", err
	}
	for _, s := range snaps {
		if s.Name == name || s.ID == name {
			return s.ID, nil
		}
	}
	return "", cloud.NotFound("snapshot", name)
}

// RevokeSnapshotAccess removes every createVolumePermission grant, which is
// how EBS snapshots are shared.
func (p *Provider) RevokeSnapshotAccess(ctx context.Context, resourceGroup, name string) error {
	id, err := p.findSnapshot(ctx, resourceGroup, name)
	if err != nil {
		return err
	}
	_, err = p.api.ResetSnapshotAttribute(ctx, &ec2.ResetSnapshotAttributeInput{
		SnapshotId: aws.String(id),
		Attribute:  types.SnapshotAttributeNameCreateVolumePermission,
	})
	return err
}

func (p *Provider) DeleteSnapshot(ctx context.Context, resourceGroup, name string) error {
	id, err := p.findSnapshot(ctx, resourceGroup, name)
	if err != nil {
		return err
	}
	if _, err := p.api.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: aws.String(id)}); err != nil {
		if isNotFoundCode(err) {
			return cloud.NotFound("snapshot", name)
		}
		return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
	}
	return nil
}

// resolveImage maps an alias or AMI ID to an available AMI ID.
func (p *Provider) resolveImage(ctx context.Context, image string) (string, error) {
	in := &ec2.DescribeImagesInput{Filters: []types.Filter{filter("state", "available")}}
	if alias, ok := p.aliases[image]; ok {
		in.Owners = []string{alias.Owner}
		in.Filters = append(in.Filters, filter("name", alias.NamePattern))
	} else if strings.HasPrefix(image, "ami-") {
		in.ImageIds = []string{image}
	} else {
		in.Filters = append(in.Filters, filter("name", image))
	}

	out, err := p.api.DescribeImages(ctx, in)
	if err != nil {
		if isNotFoundCode(err) {
			return "", cloud.NotFound("image", image)
		}
		return "", fmt.Errorf("failed to describe images: %w", err)
	}
	if len(out.Images) == 0 {
		return "", cloud.NotFound("image", image)
	}
	newest := slices.MaxFunc(out.Images, func(a, b types.Image) int {
		return strings.Compare(aws.ToString(a.CreationDate), aws.ToString(b.CreationDate))
	})
	return aws.ToString(newest.ImageId), nil
}

func (p *Provider) ImageExists(ctx context.Context, image string) (bool, error) {
	_, err := p.resolveImage(ctx, image)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, cloud.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func securityGroupName(resourceGroup, name string) string {
	return "vmjobs-" + resourceGroup + "-" + name
}

func (p *Provider) findSecurityGroup(ctx context.Context, resourceGroup, name string) (string, error) {
	in := &ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{filter("group-name", securityGroupName(resourceGroup, name))},
	}
	if p.vpcID != "" {
		in.Filters = append(in.Filters, filter("vpc-id", p.vpcID))
	}
	out, err := p.api.DescribeSecurityGroups(ctx, in)
	if err != nil {
		return "", fmt.Errorf("failed to describe security groups: %w", err)
	}
	if len(out.SecurityGroups) == 0 {
		return "", cloud.NotFound("network", name)
	}
	return aws.ToString(out.SecurityGroups[0].GroupId), nil
}

// CreateNetwork creates a security group opening the requested TCP ports to
// the internet. An existing group of the same name is reused as is.
func (p *Provider) CreateNetwork(ctx context.Context, spec cloud.NetworkSpec) (*cloud.Network, error) {
	if id, err := p.findSecurityGroup(ctx, spec.ResourceGroup, spec.Name); err == nil {
		return &cloud.Network{ID: id, Name: spec.Name}, nil
	} else if !errors.Is(err, cloud.ErrNotFound) {
		return nil, err
	}

	in := &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(securityGroupName(spec.ResourceGroup, spec.Name)),
		Description: aws.String("vmjobs network " + spec.Name),
		TagSpecifications: tagSpec(types.ResourceTypeSecurityGroup, map[string]string{
			TagName:          spec.Name,
			TagResourceGroup: spec.ResourceGroup,
		}),
	}
	if p.vpcID != "" {
		in.VpcId = aws.String(p.vpcID)
	}
	out, err := p.api.CreateSecurityGroup(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to create security group: %w", err)
	}
	id := aws.ToString(out.GroupId)

	if len(spec.Ports) > 0 {
		perms := make([]types.IpPermission, 0, len(spec.Ports))
		for _, port := range spec.Ports {
			perms = append(perms, types.IpPermission{
				IpProtocol: aws.String("tcp"),
				FromPort:   aws.Int32(int32(port)),
				ToPort:     aws.Int32(int32(port)),
				IpRanges:   []types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
			})
		}
		if _, err := p.api.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(id),
			IpPermissions: perms,
		}); err != nil {
			return nil, fmt.Errorf("failed to open ports on %s: %w", id, err)
		}
	}
	return &cloud.Network{ID: id, Name: spec.Name}, nil
}

func (p *Provider) DeleteNetwork(ctx context.Context, resourceGroup, name string) error {
	id, err := p.findSecurityGroup(ctx, resourceGroup, name)
	if err != nil {
		return err
	}
	if _, err := p.api.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(id)}); err != nil {
		return fmt.Errorf("failed to delete security group %s: %w", id, err)
	}
	return nil
}

// CreateVM launches one instance whose user data is the setup script.
func (p *Provider) CreateVM(ctx context.Context, spec cloud.VMSpec) (*cloud.VM, error) {
	if _, err := p.findInstance(ctx, spec.ResourceGroup, spec.Name); err == nil {
		return nil, cloud.AlreadyExists("vm", spec.Name)
	} else if !errors.Is(err, cloud.ErrNotFound) {
		return nil, err
	}
	ami, err := p.resolveImage(ctx, spec.Image)
	if err != nil {
		return nil, err
	}

	tags := maps.Clone(spec.Tags)
	if tags == nil {
		tags = make(map[string]string)
	}
	tags[TagName] = spec.Name
	tags[TagResourceGroup] = spec.ResourceGroup

	in := &ec2.RunInstancesInput{
		ImageId:      aws.String(ami),
		InstanceType: types.InstanceType(spec.Size),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		TagSpecifications: append(
			tagSpec(types.ResourceTypeInstance, tags),
			tagSpec(types.ResourceTypeVolume, map[string]string{TagResourceGroup: spec.ResourceGroup})...,
		),
	}
	if spec.NetworkID != "" {
		in.SecurityGroupIds = []string{spec.NetworkID}
	}
	if spec.UserData != "" {
		in.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(spec.UserData)))
	}

	out, err := p.api.RunInstances(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to run instance: %w", err)
	}
	if len(out.Instances) == 0 {
		return nil, fmt.Errorf("run instances returned no instance for %s", spec.Name)
	}
	vm := vmFromInstance(&out.Instances[0])
	vm.Location = spec.Location
	return vm, nil
}

func (p *Provider) WaitForVM(ctx context.Context, resourceGroup, name string) (*cloud.VM, error) {
	inst, err := p.findInstance(ctx, resourceGroup, name)
	if err != nil {
		return nil, err
	}
	waiter := ec2.NewInstanceRunningWaiter(p.api)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{aws.ToString(inst.InstanceId)}}, p.waitTimeout); err != nil {
		return nil, fmt.Errorf("instance %s did not reach running: %w", aws.ToString(inst.InstanceId), err)
	}
	return p.GetVM(ctx, resourceGroup, name)
}

// StartSetup marks the instance. The script itself was delivered as user data
// and cloud-init runs it on first boot.
func (p *Provider) StartSetup(ctx context.Context, vm *cloud.VM, _ string) error {
	_, err := p.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{vm.ID},
		Tags:      []types.Tag{{Key: aws.String(TagSetupStarted), Value: aws.String(time.Now().UTC().Format(time.RFC3339))}},
	})
	if err != nil {
		return fmt.Errorf("failed to tag instance %s: %w", vm.ID, err)
	}
	return nil
}

// DeleteVM terminates the instance and waits until it is gone so that its
// security group can be deleted right after.
func (p *Provider) DeleteVM(ctx context.Context, resourceGroup, name string) error {
	inst, err := p.findInstance(ctx, resourceGroup, name)
	if err != nil {
		return err
	}
	id := aws.ToString(inst.InstanceId)
	if _, err := p.api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{id}}); err != nil {
		return fmt.Errorf("failed to terminate %s: %w", id, err)
	}
	waiter := ec2.NewInstanceTerminatedWaiter(p.api)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, p.waitTimeout); err != nil {
		return fmt.Errorf("instance %s did not terminate: %w", id, err)
	}
	return nil
}

// Ready checks that the EC2 endpoint answers with the configured credentials.
func (p *Provider) Ready(ctx context.Context) error {
	in := &ec2.DescribeRegionsInput{}
	if p.region != "" {
		in.RegionNames = []string{p.region}
	}
	_, err := p.api.DescribeRegions(ctx, in)
	return err
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (p *Provider) Close() error { return nil }
