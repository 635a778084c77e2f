// Package persona loads the voice-and-boundaries configuration the answer
// generator speaks with. The persona is data, not code, so tone changes never
// require a rebuild.
package persona

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed persona.yaml
var defaultPersonaYAML []byte

// Persona describes who the assistant speaks as and what it may claim.
type Persona struct {
	Name       string   `yaml:"name"`
	Tagline    string   `yaml:"tagline"`
	Voice      string   `yaml:"voice"`
	Boundaries []string `yaml:"boundaries"`
	Contact    Contact  `yaml:"contact"`
}

type Contact struct {
	Email    string `yaml:"email"`
	Calendly string `yaml:"calendly"`
}

// Load reads the persona from path, falling back to the embedded default when
// path is empty. A file that exists but fails to parse is an error; a missing
// custom file falls back with no error.
func Load(path string) (Persona, error) {
	raw := defaultPersonaYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			raw = data
		} else if !os.IsNotExist(err) {
			return Persona{}, fmt.Errorf("read persona file: %w", err)
		}
	}
	var p Persona
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Persona{}, fmt.Errorf("parse persona yaml: %w", err)
	}
	if strings.TrimSpace(p.Name) == "" {
		return Persona{}, fmt.Errorf("persona has no name")
	}
	return p, nil
}

// SystemFragment renders the persona as a system-prompt block.
func (p Persona) SystemFragment() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You speak as the portfolio assistant for %s", p.Name)
	if p.Tagline != "" {
		fmt.Fprintf(&b, " (%s)", p.Tagline)
	}
	b.WriteString(".\n")
	if p.Voice != "" {
		fmt.Fprintf(&b, "Voice: %s\n", p.Voice)
	}
	if len(p.Boundaries) > 0 {
		b.WriteString("Hard rules:\n")
		for _, rule := range p.Boundaries {
			fmt.Fprintf(&b, "- %s\n", rule)
		}
	}
	return b.String()
}
