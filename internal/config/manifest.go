package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManifestService is one process entry in a startup manifest.
type ManifestService struct {
	Name       string            `yaml:"-"`
	Command    string            `yaml:"command"`
	WorkingDir string            `yaml:"working_dir"`
	Env        map[string]string `yaml:"env"`
	Restart    string            `yaml:"restart"`
	DependsOn  []string          `yaml:"depends_on"`
	AutoStart  bool              `yaml:"auto_start"`
}

// Manifest predeclares a set of processes a daemon should know about (and
// optionally auto-start) at boot, instead of every process being created
// through the HTTP API at runtime.
type Manifest struct {
	Services     map[string]*ManifestService `yaml:"services"`
	ServiceOrder []string                    `yaml:"-"`
}

// UnmarshalYAML preserves the order services appear in the manifest file, so
// a manifest with no depends_on still starts processes top-to-bottom.
func (m *Manifest) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("config: expected a mapping node, got kind %d", value.Kind)
	}

	for i := 0; i < len(value.Content)-1; i += 2 {
		key := value.Content[i]
		val := value.Content[i+1]
		if key.Value == "services" && val.Kind == yaml.MappingNode {
			for j := 0; j < len(val.Content)-1; j += 2 {
				m.ServiceOrder = append(m.ServiceOrder, val.Content[j].Value)
			}
			break
		}
	}

	type rawManifest Manifest
	var raw rawManifest
	if err := value.Decode(&raw); err != nil {
		return err
	}
	m.Services = raw.Services
	return nil
}

// LoadManifest reads and validates a manifest file at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest YAML and validates its dependency graph.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config: parse manifest: %w", err)
	}

	for name, svc := range m.Services {
		if svc == nil {
			m.Services[name] = &ManifestService{Name: name}
		} else {
			svc.Name = name
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every service's command and restart policy and rejects
// dependency cycles.
func (m *Manifest) Validate() error {
	for _, name := range m.ServiceOrder {
		svc := m.Services[name]
		if svc.Command == "" {
			return fmt.Errorf("config: service %q: command is required", name)
		}
		switch svc.Restart {
		case "", "never", "on-failure", "always":
		default:
			return fmt.Errorf("config: service %q: invalid restart policy %q", name, svc.Restart)
		}
		for _, dep := range svc.DependsOn {
			if _, ok := m.Services[dep]; !ok {
				return fmt.Errorf("config: service %q: unknown dependency %q", name, dep)
			}
		}
	}
	return m.detectCycles()
}

// detectCycles walks the dependency graph with the classic 3-color DFS.
func (m *Manifest) detectCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int)

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, n := range path {
				if n == name {
					start = i
					break
				}
			}
			return fmt.Errorf("config: circular dependency: %v", append(path[start:], name))
		}

		state[name] = visiting
		path = append(path, name)
		for _, dep := range m.Services[name].DependsOn {
			if err := visit(dep, path); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range m.ServiceOrder {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// StartupOrder returns the manifest's services in dependency order
// (dependencies before dependents).
func (m *Manifest) StartupOrder() []*ManifestService {
	var result []*ManifestService
	visited := make(map[string]bool)

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		svc := m.Services[name]
		for _, dep := range svc.DependsOn {
			visit(dep)
		}
		result = append(result, svc)
	}

	for _, name := range m.ServiceOrder {
		visit(name)
	}
	return result
}

// Argv splits the manifest's shell-style command string into the argv form
// ProcessSupervisor expects, by delegating to the system shell.
func (s *ManifestService) Argv() []string {
	return []string{"sh", "-c", s.Command}
}
