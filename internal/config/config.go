package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"deliberation/internal/vector"
)

const fileName = "deliberation.yml"

//go:embed scenario.schema.json
var schemaJSON string

var scenarioSchema = jsonschema.MustCompileString("scenario.schema.json", schemaJSON)

// Config models deliberation.yml: the seeded scenario plus notification
// targets.
type Config struct {
	Simulation struct {
		Name string `yaml:"name" json:"name"`
	} `yaml:"simulation" json:"simulation"`
	Metrics    map[string]int  `yaml:"metrics" json:"metrics"`
	Characters []CharacterSeed `yaml:"characters" json:"characters"`
	Projects   []ProjectSeed   `yaml:"projects" json:"projects"`
	Notify     struct {
		Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
	} `yaml:"notify" json:"notify"`
}

type CharacterSeed struct {
	ID                string `yaml:"id" json:"id,omitempty"`
	Name              string `yaml:"name" json:"name"`
	Interests         string `yaml:"interests" json:"interests,omitempty"`
	UtilityCriteria   string `yaml:"utility_criteria" json:"utility_criteria,omitempty"`
	Reading           string `yaml:"reading" json:"reading,omitempty"`
	StartingResources string `yaml:"starting_resources" json:"starting_resources"`
}

type ProjectSeed struct {
	ID                string `yaml:"id" json:"id,omitempty"`
	Name              string `yaml:"name" json:"name"`
	Description       string `yaml:"description" json:"description,omitempty"`
	Outcomes          string `yaml:"outcomes" json:"outcomes"`
	RequiredResources string `yaml:"required_resources" json:"required_resources"`
}

// WebhookConfig is one delivery target. Events filters by event type; empty
// means every event.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"-"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// Active reports whether the webhook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return strings.TrimSpace(w.URL) != "" && (w.Enabled == nil || *w.Enabled)
}

// Load reads and validates the scenario from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with dd config default > %s", path, fileName)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML checks raw YAML against the scenario schema, then decodes and
// validates it.
func FromYAML(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateSchema(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config is not representable as JSON: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if err := scenarioSchema.Validate(v); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}

// Validate checks the semantic rules the schema cannot express.
func (c *Config) Validate() error {
	if len(c.Characters) == 0 {
		return fmt.Errorf("config.characters must not be empty")
	}
	names := map[string]bool{}
	ids := map[string]bool{}
	for i, ch := range c.Characters {
		name := strings.TrimSpace(ch.Name)
		if name == "" {
			return fmt.Errorf("characters[%d].name is required", i)
		}
		if names[name] {
			return fmt.Errorf("duplicate character name %q", name)
		}
		names[name] = true
		if ch.ID != "" {
			if ids[ch.ID] {
				return fmt.Errorf("duplicate character id %q", ch.ID)
			}
			ids[ch.ID] = true
		}
		if k, neg := vector.ParseResources(ch.StartingResources).Negative(); neg {
			return fmt.Errorf("character %q starts with negative %s", name, k)
		}
	}
	projectIDs := map[string]bool{}
	for i, p := range c.Projects {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("projects[%d].name is required", i)
		}
		if p.ID != "" {
			if projectIDs[p.ID] {
				return fmt.Errorf("duplicate project id %q", p.ID)
			}
			projectIDs[p.ID] = true
		}
		if k, neg := vector.ParseResources(p.RequiredResources).Negative(); neg {
			return fmt.Errorf("project %q requires negative %s", p.Name, k)
		}
	}
	for name := range c.Metrics {
		if name != strings.ToLower(name) {
			return fmt.Errorf("metric %q must be lower case", name)
		}
	}
	for i, hook := range c.Notify.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
			return fmt.Errorf("notify.webhooks[%d].url must be http(s)", i)
		}
	}
	return nil
}

// GenerateDefault returns the default scenario YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default scenario: five characters, five projects and
// three metrics starting at 5.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

const defaultTemplate = `simulation:
  name: Deliberative Democracy

metrics:
  environment: 5
  economy: 5
  welfare: 5

characters:
  - id: character-1
    name: Character 1
    interests: Interest in environmental sustainability
    utility_criteria: Achieve 10 Environment metric
    starting_resources: "Time: 3, Money: 2, Labor: 1"
    reading: Environmental impact studies and green initiatives.
  - id: character-2
    name: Character 2
    interests: Interest in economic growth
    utility_criteria: Achieve 10 Economy metric
    starting_resources: "Time: 2, Money: 4, Labor: 1"
    reading: Economic strategies for city growth.
  - id: character-3
    name: Character 3
    interests: Interest in community welfare
    utility_criteria: Achieve 10 Welfare metric
    starting_resources: "Time: 3, Money: 2, Labor: 2"
    reading: Social programs and community health.
  - id: character-4
    name: Character 4
    interests: Interest in balanced development
    utility_criteria: Achieve a balanced score in all metrics
    starting_resources: "Time: 2, Money: 3, Labor: 2"
    reading: Integrated development plans.
  - id: character-5
    name: Character 5
    interests: Interest in rapid project execution
    utility_criteria: Complete the most projects
    starting_resources: "Time: 4, Money: 1, Labor: 3"
    reading: Project management and efficiency strategies.

projects:
  - id: project-1
    name: Project 1
    description: Develop a community park to improve green space.
    outcomes: "Environment: +2, Welfare: +1"
    required_resources: "Time: 2, Money: 1"
  - id: project-2
    name: Project 2
    description: Upgrade local businesses to boost the economy.
    outcomes: "Economy: +3, Environment: -1"
    required_resources: "Time: 3, Money: 2"
  - id: project-3
    name: Project 3
    description: Establish a health clinic for better community welfare.
    outcomes: "Welfare: +3, Economy: +1"
    required_resources: "Time: 3, Labor: 2"
  - id: project-4
    name: Project 4
    description: Launch a renewable energy initiative.
    outcomes: "Environment: +4, Economy: +1"
    required_resources: "Time: 4, Money: 3"
  - id: project-5
    name: Project 5
    description: Construct a new library for public education.
    outcomes: "Welfare: +2, Environment: +1"
    required_resources: "Time: 3, Money: 2, Labor: 1"

notify:
  webhooks: []
`
