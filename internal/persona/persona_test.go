package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEmbeddedDefault(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "Moray Vesik" {
		t.Fatalf("name: got=%q", p.Name)
	}
	if len(p.Boundaries) == 0 {
		t.Fatalf("embedded persona should carry boundaries")
	}
}

func TestLoadMissingCustomFileFallsBack(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "Moray Vesik" {
		t.Fatalf("name: got=%q", p.Name)
	}
}

func TestLoadCustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	content := strings.Join([]string{
		"name: Test Person",
		"tagline: builder of things",
		"voice: direct and dry",
		"boundaries:",
		"  - never invent employers",
		"contact:",
		"  email: test@example.com",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "Test Person" || p.Contact.Email != "test@example.com" {
		t.Fatalf("persona: got=%+v", p)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	if err := os.WriteFile(path, []byte("name: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("want parse error")
	}
}

func TestLoadRejectsNamelessPersona(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	if err := os.WriteFile(path, []byte("tagline: no name here"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("want missing name error")
	}
}

func TestSystemFragment(t *testing.T) {
	p := Persona{
		Name:       "Moray Vesik",
		Tagline:    "product and data",
		Voice:      "friendly, concrete",
		Boundaries: []string{"never invent metrics"},
	}
	frag := p.SystemFragment()
	for _, want := range []string{"Moray Vesik", "(product and data)", "Voice: friendly, concrete", "- never invent metrics"} {
		if !strings.Contains(frag, want) {
			t.Fatalf("fragment missing %q:\n%s", want, frag)
		}
	}
}
