package workflow

import (
	"context"
	"errors"
	"fmt"

	"vmjobs/internal/cloud"
	"vmjobs/internal/job"
	"vmjobs/internal/version"
	"vmjobs/internal/webhook"
	"vmjobs/pkg/retry"
)

// Clone defaults.
const (
	DefaultImageOffer     = "Windows-10"
	DefaultImagePublisher = "MicrosoftWindowsDesktop"
)

var cloneRequired = []string{
	"resource_group", "vm_name", "gallery_resource_group",
	"gallery_name", "image_definition_name", "image_sku",
}

type cloneRun struct {
	vm       *cloud.VM
	snapshot *cloud.Snapshot
	version  string
	image    *cloud.ImageVersion
}

// Clone snapshots a VM's OS disk and publishes it as the next version of an
// image definition.
func (b *Builder) Clone(p Params) (job.LaunchRequest, error) {
	if err := p.Require(cloneRequired...); err != nil {
		return job.LaunchRequest{}, err
	}
	hook, err := hookURL(p)
	if err != nil {
		return job.LaunchRequest{}, err
	}

	var (
		rg         = p["resource_group"]
		vmName     = p["vm_name"]
		galleryRG  = p["gallery_resource_group"]
		gallery    = p["gallery_name"]
		definition = p["image_definition_name"]
		defSpec    = cloud.ImageDefinitionSpec{
			ResourceGroup: galleryRG,
			Gallery:       gallery,
			Name:          definition,
			Publisher:     p.Get("image_publisher", DefaultImagePublisher),
			Offer:         p.Get("image_offer", DefaultImageOffer),
			SKU:           p["image_sku"],
		}
		run = &cloneRun{}
	)

	steps := []job.Step{
		{Name: "get_vm", Action: func(ctx context.Context) (string, error) {
			vm, err := b.provider.GetVM(ctx, rg, vmName)
			if err != nil {
				return "", fmt.Errorf("failed to get VM '%s': %w", vmName, err)
			}
			run.vm = vm
			return fmt.Sprintf("found VM %s in %s", vm.Name, vm.Location), nil
		}},
		{Name: "create_snapshot", Action: func(ctx context.Context) (string, error) {
			name := vmName + "-osdisk-snapshot"
			err := b.withRetry(ctx, "snapshot_disk", func(ctx context.Context) error {
				s, err := b.provider.SnapshotDisk(ctx, run.vm, name)
				run.snapshot = s
				return err
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("created snapshot %s", name), nil
		}},
		{Name: "ensure_gallery", Action: func(ctx context.Context) (string, error) {
			err := b.withRetry(ctx, "ensure_gallery", func(ctx context.Context) error {
				_, err := b.provider.EnsureGallery(ctx, galleryRG, gallery, run.vm.Location)
				return err
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("gallery %s ready", gallery), nil
		}},
		{Name: "ensure_image_definition", Action: func(ctx context.Context) (string, error) {
			spec := defSpec
			spec.Location = run.vm.Location
			err := b.withRetry(ctx, "ensure_image_definition", func(ctx context.Context) error {
				_, err := b.provider.EnsureImageDefinition(ctx, spec)
				return err
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("image definition %s ready", definition), nil
		}},
		{Name: "resolve_version", Action: func(ctx context.Context) (string, error) {
			v, n, err := b.nextVersion(ctx, galleryRG, gallery, definition)
			if err != nil {
				return "", err
			}
			run.version = v
			return fmt.Sprintf("next image version %s (%d existing)", v, n), nil
		}},
		{Name: "create_image_version", Action: func(ctx context.Context) (string, error) {
			if err := b.createVersion(ctx, run, defSpec); err != nil {
				return "", err
			}
			return fmt.Sprintf("image version %s created", run.image.Version), nil
		}},
	}

	return job.LaunchRequest{
		Workflow: job.Workflow{
			Kind:          job.KindClone,
			WorkingStatus: webhook.StatusProvisioning,
			Steps:         steps,
			Outputs: func() map[string]any {
				return map[string]any{
					"image_version":          run.image.Version,
					"image_id":               run.image.ID,
					"snapshot_id":            run.snapshot.ID,
					"gallery_resource_group": galleryRG,
					"gallery_name":           gallery,
					"image_definition_name":  definition,
				}
			},
			Summary: func() string {
				return fmt.Sprintf("image %s/%s version %s created from %s", gallery, definition, run.image.Version, vmName)
			},
		},
		Subject: job.Subject{Name: vmName, Attributes: map[string]string{
			"resource_group":         rg,
			"gallery_resource_group": galleryRG,
			"gallery_name":           gallery,
			"image_definition_name":  definition,
		}},
		HookURL: hook,
	}, nil
}

func (b *Builder) nextVersion(ctx context.Context, rg, gallery, definition string) (string, int, error) {
	var existing []string
	err := b.withRetry(ctx, "list_image_versions", func(ctx context.Context) error {
		var err error
		existing, err = b.provider.ListImageVersions(ctx, rg, gallery, definition)
		return err
	})
	if err != nil {
		return "", 0, err
	}
	return version.Next(existing), len(existing), nil
}

// createVersion publishes run.version. When another publisher took that label
// first, the next free label is resolved and the create is tried again.
func (b *Builder) createVersion(ctx context.Context, run *cloneRun, def cloud.ImageDefinitionSpec) error {
	policy := retry.Policy{
		Attempts:  3,
		Retryable: func(err error) bool { return errors.Is(err, cloud.ErrAlreadyExists) },
	}
	return retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			v, _, err := b.nextVersion(ctx, def.ResourceGroup, def.Gallery, def.Name)
			if err != nil {
				return err
			}
			b.logger.Warn("Image version taken, trying next", "taken", run.version, "next", v)
			run.version = v
		}
		img, err := b.provider.CreateImageVersion(ctx, cloud.ImageVersionSpec{
			ResourceGroup: def.ResourceGroup,
			Gallery:       def.Gallery,
			Definition:    def.Name,
			Version:       run.version,
			SnapshotID:    run.snapshot.ID,
			Location:      run.vm.Location,
		})
		if err != nil {
			return err
		}
		run.image = img
		return nil
	})
}
