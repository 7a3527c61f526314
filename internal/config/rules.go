package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Rules is the optional YAML rules file.
//
//	autopin:
//	  - "https://mail.example.com/**"
type Rules struct {
	AutoPin []string `yaml:"autopin"`
}

// LoadRules reads and validates the rules file. A missing file yields empty
// rules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return &Rules{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Rules{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rules config: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes rules YAML and checks that every pattern compiles.
func ParseRules(data []byte) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("rules config: %w", err)
	}
	for i, p := range rules.AutoPin {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("rules config: autopin[%d] is empty", i)
		}
		if _, err := glob.Compile(p, '/'); err != nil {
			return nil, fmt.Errorf("rules config: autopin[%d] %q: %w", i, p, err)
		}
		rules.AutoPin[i] = p
	}
	return &rules, nil
}
