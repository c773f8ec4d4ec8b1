package docker

import (
	"regexp"
	"strings"
)

// Labels put on every resource this provider creates.
const (
	LabelManaged   = "vmjobs.managed"
	LabelGroup     = "vmjobs.group"
	LabelName      = "vmjobs.name"
	LabelKind      = "vmjobs.kind"
	LabelPorts     = "vmjobs.ports"
	LabelTagPrefix = "vmjobs.tag."

	kindVM       = "vm"
	kindSnapshot = "snapshot"
	kindNetwork  = "network"
)

var invalidRefChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// component lowercases s and replaces characters Docker rejects in names and
// repository path components.
func component(s string) string {
	s = invalidRefChars.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-.")
}

func containerName(resourceGroup, name string) string {
	return "vmjobs-" + component(resourceGroup) + "-" + component(name)
}

func networkName(resourceGroup, name string) string {
	return "vmjobs-" + component(resourceGroup) + "-" + component(name)
}

func snapshotRepo(resourceGroup, name string) string {
	return "vmjobs-snapshot/" + component(resourceGroup) + "/" + component(name)
}

func definitionRepo(gallery, definition string) string {
	return component(gallery) + "/" + component(definition)
}

// versionsFromTags extracts the tags of repo from image RepoTags.
func versionsFromTags(repo string, repoTags []string) []string {
	var out []string
	for _, rt := range repoTags {
		if tag, ok := strings.CutPrefix(rt, repo+":"); ok {
			out = append(out, tag)
		}
	}
	return out
}

func labels(kind, resourceGroup, name string) map[string]string {
	return map[string]string{
		LabelManaged: "true",
		LabelKind:    kind,
		LabelGroup:   resourceGroup,
		LabelName:    name,
	}
}
