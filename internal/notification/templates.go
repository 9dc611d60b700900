package notification

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

type templateDef struct {
	Channel string `yaml:"channel"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type templatesFile struct {
	Templates map[string]templateDef `yaml:"templates"`
}

// Registry holds the parsed notification templates.
type Registry struct {
	defs   map[string]templateDef
	bodies map[string]*template.Template
}

// LoadTemplates parses the embedded template definitions.
func LoadTemplates() (*Registry, error) {
	var file templatesFile
	if err := yaml.Unmarshal(templatesYAML, &file); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	reg := &Registry{
		defs:   file.Templates,
		bodies: make(map[string]*template.Template, len(file.Templates)),
	}
	for name, def := range file.Templates {
		tmpl, err := template.New(name).Parse(def.Body)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		reg.bodies[name] = tmpl
	}
	return reg, nil
}

// Render fills the named template with data. Subject is empty for SMS and
// chat templates.
func (r *Registry) Render(name string, data any) (subject, body string, err error) {
	tmpl, ok := r.bodies[name]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render template %s: %w", name, err)
	}
	return r.defs[name].Subject, buf.String(), nil
}

// Channel returns the delivery channel declared for the template.
func (r *Registry) Channel(name string) (string, bool) {
	def, ok := r.defs[name]
	return def.Channel, ok
}
