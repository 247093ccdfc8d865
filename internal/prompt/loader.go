package prompt

import (
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// File is the YAML schema for a prompt override file. Either template may be
// omitted, in which case the built-in one is kept. Overrides use the same
// field names as the defaults ({{.Name}}, {{.Amount}}, ... / {{.Subject}},
// {{.Content}}).
type File struct {
	DealFollowUp  string `yaml:"deal_follow_up,omitempty"`
	CustomerReply string `yaml:"customer_reply,omitempty"`
}

// LoadFile parses a prompt override file and returns a library with the
// overridden templates merged over the defaults.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing prompt file: %w", err)
	}

	lib := Default()
	if f.DealFollowUp != "" {
		tmpl, err := template.New("deal_follow_up").Parse(f.DealFollowUp)
		if err != nil {
			return nil, fmt.Errorf("parsing deal_follow_up template: %w", err)
		}
		lib.deal = tmpl
	}
	if f.CustomerReply != "" {
		tmpl, err := template.New("customer_reply").Parse(f.CustomerReply)
		if err != nil {
			return nil, fmt.Errorf("parsing customer_reply template: %w", err)
		}
		lib.reply = tmpl
	}
	return lib, nil
}
