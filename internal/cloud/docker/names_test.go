package docker

import (
	"slices"
	"testing"
)

func TestComponent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"rg-vms", "rg-vms"},
		{"RG_Prod", "rg_prod"},
		{"my gallery!", "my-gallery"},
		{"--edge--", "edge"},
		{"win10.v2", "win10.v2"},
	}
	for _, tt := range tests {
		if got := component(tt.in); got != tt.want {
			t.Errorf("component(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResourceNames(t *testing.T) {
	t.Parallel()
	if got := containerName("RG", "Web 01"); got != "vmjobs-rg-web-01" {
		t.Errorf("containerName = %q", got)
	}
	if got := snapshotRepo("rg", "win-01-osdisk-snapshot"); got != "vmjobs-snapshot/rg/win-01-osdisk-snapshot" {
		t.Errorf("snapshotRepo = %q", got)
	}
	if got := definitionRepo("Gallery", "Win10"); got != "gallery/win10" {
		t.Errorf("definitionRepo = %q", got)
	}
}

func TestVersionsFromTags(t *testing.T) {
	t.Parallel()
	got := versionsFromTags("gallery/win10", []string{
		"gallery/win10:1.0.0",
		"gallery/win10:1.0.1",
		"gallery/win10-old:9.9.9",
		"other:1.0.0",
	})
	want := []string{"1.0.0", "1.0.1"}
	if !slices.Equal(got, want) {
		t.Errorf("versionsFromTags = %v, want %v", got, want)
	}
}

func TestPorts(t *testing.T) {
	t.Parallel()
	if got := joinPorts([]int{22, 80, 443}); got != "22,80,443" {
		t.Errorf("joinPorts = %q", got)
	}
	if got := splitPorts("22, 80,junk,,443"); !slices.Equal(got, []int{22, 80, 443}) {
		t.Errorf("splitPorts = %v", got)
	}

	exposed, bindings := portMappings([]int{22, 443})
	if len(exposed) != 2 || len(bindings) != 2 {
		t.Fatalf("Expected 2 ports, got %d exposed and %d bound", len(exposed), len(bindings))
	}
	if _, ok := exposed["443/tcp"]; !ok {
		t.Error("Expected 443/tcp to be exposed")
	}
	if e, b := portMappings(nil); e != nil || b != nil {
		t.Error("Expected no mappings for no ports")
	}
}
