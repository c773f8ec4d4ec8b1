package workflow

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"vmjobs/internal/apperrors"
	"vmjobs/internal/cloud"
	"vmjobs/internal/job"
	"vmjobs/internal/recipe"
	"vmjobs/internal/webhook"
)

var provisionRequired = []string{"vm_name", "resource_group", "location", "vm_size", "image", "admin_email"}

type provisionRun struct {
	network *cloud.Network
	vm      *cloud.VM
	script  string
}

// Provision creates a network and a VM, then hands the VM to the provisioning
// agent, which installs the recipe and reports its own steps to the same
// webhook. A failure after the network exists removes what was created.
func (b *Builder) Provision(p Params) (job.LaunchRequest, error) {
	if err := p.Require(provisionRequired...); err != nil {
		return job.LaunchRequest{}, err
	}
	hook, err := hookURL(p)
	if err != nil {
		return job.LaunchRequest{}, err
	}
	domain := strings.ToLower(p["domain"])
	if err := ValidateRootDomain(domain); err != nil {
		return job.LaunchRequest{}, err
	}
	email := p["admin_email"]
	if _, err := mail.ParseAddress(email); err != nil {
		return job.LaunchRequest{}, apperrors.Validation("admin_email", fmt.Sprintf("Invalid admin_email '%s'", email))
	}
	recipeName := p.Get("recipe", recipe.DefaultName)
	rcp, ok := b.recipes.Get(recipeName)
	if !ok {
		return job.LaunchRequest{}, apperrors.Validation("recipe",
			fmt.Sprintf("Unknown recipe '%s'. Available: %s", recipeName, strings.Join(b.recipes.Names(), ", ")))
	}
	if rcp.NeedsDomain() && domain == "" {
		return job.LaunchRequest{}, apperrors.Validation("domain", fmt.Sprintf("Recipe '%s' requires a domain", rcp.Name))
	}

	var (
		rg      = p["resource_group"]
		vmName  = p["vm_name"]
		netName = vmName + "-net"
		image   = p["image"]
		fqdn    = ""
		run     = &provisionRun{}
	)
	if domain != "" {
		fqdn = vmName + "." + domain
	}

	steps := []job.Step{
		{Name: "validate_image", Action: func(ctx context.Context) (string, error) {
			exists, err := b.provider.ImageExists(ctx, image)
			if err != nil {
				return "", err
			}
			if !exists {
				return "", fmt.Errorf("image %s not found", image)
			}
			return fmt.Sprintf("image %s available", image), nil
		}},
		{Name: "create_network", Action: func(ctx context.Context) (string, error) {
			err := b.withRetry(ctx, "create_network", func(ctx context.Context) error {
				n, err := b.provider.CreateNetwork(ctx, cloud.NetworkSpec{
					ResourceGroup: rg,
					Name:          netName,
					Location:      p["location"],
					Ports:         rcp.Ports,
				})
				run.network = n
				return err
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("network %s open on ports %s", netName, joinPorts(rcp.Ports)), nil
		}},
		{Name: "create_vm", Action: func(ctx context.Context) (string, error) {
			script, err := recipe.RenderSetupScript(recipe.SetupParams{
				Recipe:     rcp,
				VMName:     vmName,
				JobID:      job.IDFromContext(ctx),
				WebhookURL: hook,
				Domain:     domain,
				AdminEmail: email,
				AgentURL:   b.agentURL,
			})
			if err != nil {
				return "", err
			}
			run.script = script
			vm, err := b.provider.CreateVM(ctx, cloud.VMSpec{
				ResourceGroup: rg,
				Name:          vmName,
				Location:      p["location"],
				Size:          p["vm_size"],
				Image:         image,
				NetworkID:     run.network.ID,
				UserData:      run.script,
				Tags:          map[string]string{"recipe": rcp.Name, "job_id": job.IDFromContext(ctx)},
			})
			if err != nil {
				return "", err
			}
			run.vm = vm
			return fmt.Sprintf("VM %s created (%s)", vmName, p["vm_size"]), nil
		}},
		{Name: "wait_for_vm", Action: func(ctx context.Context) (string, error) {
			vm, err := b.provider.WaitForVM(ctx, rg, vmName)
			if err != nil {
				return "", err
			}
			run.vm = vm
			return fmt.Sprintf("VM %s is %s at %s", vmName, vm.State, vm.PublicIP), nil
		}},
		{Name: "start_setup", Action: func(ctx context.Context) (string, error) {
			if err := b.provider.StartSetup(ctx, run.vm, run.script); err != nil {
				return "", err
			}
			return fmt.Sprintf("recipe %s handed to provisioning agent", rcp.Name), nil
		}},
	}

	cleanup := []job.Step{
		{Name: "cleanup_network", Action: func(ctx context.Context) (string, error) {
			if run.network == nil {
				return "no network to remove", nil
			}
			if err := b.provider.DeleteNetwork(ctx, rg, netName); err != nil {
				return "", err
			}
			return fmt.Sprintf("network %s removed", netName), nil
		}},
		{Name: "cleanup_vm", Action: func(ctx context.Context) (string, error) {
			if run.vm == nil {
				return "no VM to remove", nil
			}
			if err := b.provider.DeleteVM(ctx, rg, vmName); err != nil {
				return "", err
			}
			return fmt.Sprintf("VM %s removed", vmName), nil
		}},
	}

	return job.LaunchRequest{
		Workflow: job.Workflow{
			Kind:          job.KindProvision,
			WorkingStatus: webhook.StatusProvisioning,
			Steps:         steps,
			Cleanup:       cleanup,
			Outputs: func() map[string]any {
				out := map[string]any{
					"instance_id": run.vm.ID,
					"public_ip":   run.vm.PublicIP,
					"recipe":      rcp.Name,
				}
				if fqdn != "" {
					out["fqdn"] = fqdn
				}
				return out
			},
			Summary: func() string {
				return fmt.Sprintf("VM %s is up at %s; recipe %s is being installed", vmName, run.vm.PublicIP, rcp.Name)
			},
		},
		Subject: job.Subject{Name: vmName, Attributes: map[string]string{
			"resource_group": rg,
			"location":       p["location"],
			"vm_size":        p["vm_size"],
			"recipe":         rcp.Name,
			"fqdn":           fqdn,
		}},
		HookURL: hook,
	}, nil
}

// ValidateRootDomain accepts an empty domain or a root domain such as
// "example.com". Subdomains are rejected because the VM name becomes the
// host label.
func ValidateRootDomain(domain string) error {
	if domain == "" {
		return nil
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") {
		return apperrors.Validation("domain",
			fmt.Sprintf("Domain '%s' is invalid or incomplete. Please enter a valid domain (e.g., 'example.com').", domain))
	}
	if len(strings.Split(domain, ".")) > 2 {
		return apperrors.Validation("domain",
			fmt.Sprintf("Domain '%s' should not contain subdomains. Please enter the root domain only (e.g., 'example.com').", domain))
	}
	return nil
}

func joinPorts(ports []int) string {
	if len(ports) == 0 {
		return "none"
	}
	s := make([]string, len(ports))
	for i, p := range ports {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, ", ")
}
