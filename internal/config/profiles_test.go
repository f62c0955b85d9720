package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/seantiz/stbuild/internal/model"
)

func TestLoadProfilesEmptyPath(t *testing.T) {
	profiles, err := LoadProfiles("")
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if profiles[model.ProfileCompile] != model.CompileProfile() {
		t.Errorf("compile profile = %+v, want built-in", profiles[model.ProfileCompile])
	}
	if len(profiles) != 2 {
		t.Errorf("len = %d, want 2", len(profiles))
	}
}

func TestLoadProfilesOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	doc := `
profiles:
  compile:
    memory: 2m
    fast_forward: false
  falcon:
    machine: falcon
    tos: tos206
    video: low
    memory: 4m
    hard_disk: true
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}

	compile := profiles[model.ProfileCompile]
	if compile.Memory != model.Memory2M {
		t.Errorf("compile memory = %q, want %q", compile.Memory, model.Memory2M)
	}
	if compile.FastForward {
		t.Error("compile fast_forward should be overridden to false")
	}
	if compile.Video != model.VideoHigh || !compile.Blitter {
		t.Errorf("unset fields must keep built-in values, got %+v", compile)
	}

	falcon, ok := profiles["falcon"]
	if !ok {
		t.Fatal("falcon profile missing")
	}
	if falcon.Name != "falcon" || falcon.Machine != model.MachineFalcon || !falcon.HardDisk {
		t.Errorf("falcon = %+v", falcon)
	}

	if profiles[model.ProfileRun] != model.RunProfile() {
		t.Error("run profile should be untouched")
	}
}

func TestParseProfilesErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", "profiles: [unclosed"},
		{"unknown machine", "profiles:\n  amiga:\n    machine: a500\n    tos: tos206\n    video: low\n    memory: 1m\n"},
		{"wrong type", "profiles:\n  compile:\n    blitter: maybe\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseProfiles([]byte(tt.doc), model.DefaultProfiles()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadProfilesMissingFile(t *testing.T) {
	if _, err := LoadProfiles(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
