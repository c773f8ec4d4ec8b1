package agent

import (
	"fmt"
	"time"

	"vmjobs/internal/config"
)

// Config holds configuration for the provisioning agent. The setup script
// exports these before starting the agent on the VM.
type Config struct {
	RecipeFile string        `env:"RECIPE_FILE"`
	Recipe     string        `env:"RECIPE"` // built-in recipe name, used when RECIPE_FILE is empty
	WebhookURL string        `env:"WEBHOOK_URL"`
	VMName     string        `env:"VM_NAME"`
	JobID      string        `env:"JOB_ID"`
	Shell      string        `env:"RECIPE_SHELL"   envDefault:"/bin/bash"`
	Workdir    string        `env:"RECIPE_WORKDIR" envDefault:"/"`
	Timeout    time.Duration `env:"RECIPE_TIMEOUT" envDefault:"2h"`

	Webhook config.WebhookConfig `envPrefix:"WEBHOOK_"`
}

// LoadConfig reads agent configuration from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := config.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.RecipeFile == "" && cfg.Recipe == "" {
		return nil, fmt.Errorf("one of RECIPE_FILE or RECIPE is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Hour
	}
	cfg.Webhook.Sanitize()
	return &cfg, nil
}
