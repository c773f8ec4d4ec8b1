package cloud

import (
	"fmt"
	"time"
)

// VM is a virtual machine (or whatever stands in for one).
type VM struct {
	ID            string
	Name          string
	ResourceGroup string
	Location      string
	State         string
	OSDiskID      string
	PublicIP      string
	Tags          map[string]string
}

// Snapshot is a point-in-time copy of a disk.
type Snapshot struct {
	ID            string
	Name          string
	ResourceGroup string
	SourceDiskID  string
	CreatedAt     time.Time
}

// Gallery groups image definitions.
type Gallery struct {
	ID            string
	Name          string
	ResourceGroup string
	Location      string
}

// ImageDefinitionSpec describes an image definition to create if missing.
type ImageDefinitionSpec struct {
	ResourceGroup string
	Gallery       string
	Name          string
	Publisher     string
	Offer         string
	SKU           string
	Location      string
}

// ImageDefinition is a named, versioned image family inside a gallery.
type ImageDefinition struct {
	ID        string
	Gallery   string
	Name      string
	Publisher string
	Offer     string
	SKU       string
}

// ImageVersionSpec describes a new image version built from a snapshot.
type ImageVersionSpec struct {
	ResourceGroup string
	Gallery       string
	Definition    string
	Version       string
	SnapshotID    string
	Location      string
}

// ImageVersion is a published version of an image definition.
type ImageVersion struct {
	ID         string
	Definition string
	Version    string
}

// NetworkSpec describes the isolated network a provisioned VM lives in.
type NetworkSpec struct {
	ResourceGroup string
	Name          string
	Location      string
	Ports         []int // inbound TCP ports to open
}

// Network is a created network.
type Network struct {
	ID   string
	Name string
}

// VMSpec describes a VM to create.
type VMSpec struct {
	ResourceGroup string
	Name          string
	Location      string
	Size          string
	Image         string
	NetworkID     string
	UserData      string
	Tags          map[string]string
}

// NotFound wraps ErrNotFound with the kind and name of the missing resource.
func NotFound(kind, name string) error {
	return fmt.Errorf("%s %q: %w", kind, name, ErrNotFound)
}

// AlreadyExists wraps ErrAlreadyExists with the kind and name of the resource.
func AlreadyExists(kind, name string) error {
	return fmt.Errorf("%s %q: %w", kind, name, ErrAlreadyExists)
}
