// Package cloud defines the port through which workflows touch cloud resources.
//
// Implementations live in subpackages: memory (tests and local development),
// ec2 (AWS) and docker (containers standing in for VMs).
package cloud

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mock -destination=mock/provider_mock.go vmjobs/internal/cloud Provider

import (
	"context"
	"errors"
)

// Errors wrapped by providers so workflows can classify failures.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
)

// Provider is the set of remote operations the workflows need. Every method
// may be slow and may fail; none of them retries on its own.
type Provider interface {
	// Clone
	GetVM(ctx context.Context, resourceGroup, name string) (*VM, error)
	SnapshotDisk(ctx context.Context, vm *VM, snapshotName string) (*Snapshot, error)
	EnsureGallery(ctx context.Context, resourceGroup, name, location string) (*Gallery, error)
	EnsureImageDefinition(ctx context.Context, spec ImageDefinitionSpec) (*ImageDefinition, error)
	ListImageVersions(ctx context.Context, resourceGroup, gallery, definition string) ([]string, error)
	CreateImageVersion(ctx context.Context, spec ImageVersionSpec) (*ImageVersion, error)

	// Snapshot cleanup
	ListSnapshots(ctx context.Context, resourceGroup string) ([]Snapshot, error)
	RevokeSnapshotAccess(ctx context.Context, resourceGroup, name string) error
	DeleteSnapshot(ctx context.Context, resourceGroup, name string) error

	// Provisioning
	ImageExists(ctx context.Context, image string) (bool, error)
	CreateNetwork(ctx context.Context, spec NetworkSpec) (*Network, error)
	DeleteNetwork(ctx context.Context, resourceGroup, name string) error
	CreateVM(ctx context.Context, spec VMSpec) (*VM, error)
	WaitForVM(ctx context.Context, resourceGroup, name string) (*VM, error)
	StartSetup(ctx context.Context, vm *VM, script string) error
	DeleteVM(ctx context.Context, resourceGroup, name string) error

	// Ready checks that the backend is reachable.
	Ready(ctx context.Context) error
	Close() error
}
