package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// Paths used by the rendered setup script on the VM.
const (
	RecipePath = "/etc/vmjobs/recipe.yaml"
	AgentPath  = "/usr/local/bin/provision-agent"
	AgentLog   = "/var/log/vmjobs-agent.log"
)

// SetupParams feeds the VM user-data script.
type SetupParams struct {
	Recipe     *Recipe
	VMName     string
	JobID      string
	WebhookURL string
	Domain     string
	AdminEmail string
	// AgentURL is downloaded to AgentPath when set.
	AgentURL string
}

var setupTemplate = template.Must(template.New("setup").Funcs(template.FuncMap{
	"shq":  shellQuote,
	"json": jsonString,
}).Parse(`#!/bin/bash
set -euo pipefail
export DEBIAN_FRONTEND=noninteractive

WEBHOOK_URL={{ shq .WebhookURL }}
VM_NAME_JSON={{ shq (json .VMName) }}

notify_webhook() {
  [ -z "$WEBHOOK_URL" ] && return 0
  local payload
  payload=$(printf '{"vm_name":%s,"status":"%s","timestamp":"%s","job_id":%s,"details":{"step":"%s","message":"%s"}}' \
    "$VM_NAME_JSON" "$1" "$(date -u +%Y-%m-%dT%H:%M:%SZ)" {{ shq (json .JobID) }} "$2" "$3")
  curl -s -X POST "$WEBHOOK_URL" -H "Content-Type: application/json" -d "$payload" \
    --connect-timeout 10 --max-time 30 --retry 2 --retry-delay 5 || true
}
trap 'notify_webhook "failed" "agent_bootstrap" "setup script failed on line $LINENO"' ERR

mkdir -p "$(dirname {{ shq .RecipePath }})"
cat > {{ shq .RecipePath }} <<'VMJOBS_RECIPE'
{{ .RecipeYAML }}VMJOBS_RECIPE
{{- if .AgentURL }}

curl -fsSL --retry 3 --retry-delay 5 -o {{ shq .AgentPath }} {{ shq .AgentURL }}
chmod +x {{ shq .AgentPath }}
{{- end }}

trap - ERR
export RECIPE_FILE={{ shq .RecipePath }}
export WEBHOOK_URL
export VM_NAME={{ shq .VMName }}
export JOB_ID={{ shq .JobID }}
export DOMAIN_NAME={{ shq .Domain }}
export ADMIN_EMAIL={{ shq .AdminEmail }}
exec {{ shq .AgentPath }} >>{{ shq .AgentLog }} 2>&1
`))

// RenderSetupScript renders the bash script that installs the recipe and
// hands control to provision-agent.
func RenderSetupScript(p SetupParams) (string, error) {
	if p.Recipe == nil {
		return "", fmt.Errorf("render setup script: recipe is required")
	}
	doc, err := p.Recipe.Marshal()
	if err != nil {
		return "", fmt.Errorf("render setup script: %w", err)
	}
	if bytes.Contains(doc, []byte("\nVMJOBS_RECIPE")) {
		return "", fmt.Errorf("render setup script: recipe contains the heredoc terminator")
	}
	data := struct {
		SetupParams
		RecipeYAML string
		RecipePath string
		AgentPath  string
		AgentLog   string
	}{p, string(doc), RecipePath, AgentPath, AgentLog}

	var buf bytes.Buffer
	if err := setupTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render setup script: %w", err)
	}
	return buf.String(), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func jsonString(s string) string {
	if s == "" {
		return "null"
	}
	b, _ := json.Marshal(s)
	return string(b)
}
