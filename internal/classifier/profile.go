package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/default.yaml
var defaultProfileYAML []byte

// Profile tunes the prompt for a market: which merchants count as
// subscriptions, which charges to ignore and which categories to use.
type Profile struct {
	Language    string   `yaml:"language"`
	Market      string   `yaml:"market"`
	MaxInsights int      `yaml:"max_insights"`
	Include     []string `yaml:"include"`
	Ignore      []string `yaml:"ignore"`
	Categories  []string `yaml:"categories"`
}

// DefaultProfile returns the embedded Brazilian market profile.
func DefaultProfile() Profile {
	p, err := ParseProfile(defaultProfileYAML)
	if err != nil {
		panic(fmt.Sprintf("classifier: embedded profile is invalid: %v", err))
	}
	return p
}

// LoadProfile reads a profile from path. An empty path returns the default.
func LoadProfile(path string) (Profile, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfile(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("LoadProfile: reading %s: %w", path, err)
	}

	p, err := ParseProfile(data)
	if err != nil {
		return Profile{}, fmt.Errorf("LoadProfile: %s: %w", path, err)
	}
	return p, nil
}

// ParseProfile decodes a YAML profile and fills in defaults.
func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("ParseProfile: decoding yaml: %w", err)
	}

	if p.Language == "" {
		p.Language = "pt-BR"
	}
	if p.MaxInsights <= 0 {
		p.MaxInsights = 3
	}
	if len(p.Include) == 0 {
		return Profile{}, fmt.Errorf("ParseProfile: include list is empty")
	}
	return p, nil
}
