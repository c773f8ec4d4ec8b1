package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vmjobs/internal/cloud"
	"vmjobs/internal/job"
	"vmjobs/internal/webhook"
)

// DefaultLocation is reported for snapshot cleanups that name no location.
const DefaultLocation = "global"

// DeleteBatch deletes every snapshot in a resource group, optionally only
// those whose name starts with name_prefix. One failed snapshot does not stop
// the others.
func (b *Builder) DeleteBatch(p Params) (job.LaunchRequest, error) {
	if err := p.Require("resource_group"); err != nil {
		return job.LaunchRequest{}, err
	}
	hook, err := hookURL(p)
	if err != nil {
		return job.LaunchRequest{}, err
	}

	rg := p["resource_group"]
	prefix := p["name_prefix"]
	var names []string

	list := job.Step{Name: "list_snapshots", Action: func(ctx context.Context) (string, error) {
		var snaps []cloud.Snapshot
		err := b.withRetry(ctx, "list_snapshots", func(ctx context.Context) error {
			var err error
			snaps, err = b.provider.ListSnapshots(ctx, rg)
			return err
		})
		if err != nil {
			return "", err
		}
		names = names[:0]
		for _, s := range snaps {
			if strings.HasPrefix(s.Name, prefix) {
				names = append(names, s.Name)
			}
		}
		return fmt.Sprintf("found %d snapshots in %s", len(names), rg), nil
	}}

	return job.LaunchRequest{
		Workflow: job.Workflow{
			Kind:          job.KindDeleteBatch,
			WorkingStatus: webhook.StatusDeleting,
			Steps:         []job.Step{list},
			Batch: &job.Batch{
				Prefix: "snapshot_deleted",
				Verb:   "deleted",
				Noun:   "snapshots",
				Items:  func() []string { return names },
				Action: func(ctx context.Context, name string) (string, error) {
					return b.deleteSnapshot(ctx, rg, name)
				},
			},
		},
		Subject: job.Subject{Attributes: map[string]string{
			"resource_group": rg,
			"location":       p.Get("location", DefaultLocation),
		}},
		HookURL: hook,
	}, nil
}

func (b *Builder) deleteSnapshot(ctx context.Context, rg, name string) (string, error) {
	// An export that cannot be revoked only matters if the delete fails too.
	if err := b.provider.RevokeSnapshotAccess(ctx, rg, name); err != nil {
		b.logger.Warn("No active export or failed to revoke", "snapshot", name, "error", err)
	}

	err := b.withRetry(ctx, "delete_snapshot", func(ctx context.Context) error {
		return b.provider.DeleteSnapshot(ctx, rg, name)
	})
	switch {
	case errors.Is(err, cloud.ErrNotFound):
		return fmt.Sprintf("snapshot %s already deleted", name), nil
	case err != nil:
		return "", fmt.Errorf("failed to delete snapshot %s: %w", name, err)
	}
	b.logger.Info("Deleted snapshot", "snapshot", name, "resourceGroup", rg)
	return fmt.Sprintf("deleted snapshot %s", name), nil
}
