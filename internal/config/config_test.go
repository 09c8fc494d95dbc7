package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliberation/internal/config"
)

func TestDefaultScenario(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Characters, 5)
	assert.Len(t, cfg.Projects, 5)
	assert.Equal(t, map[string]int{"environment": 5, "economy": 5, "welfare": 5}, cfg.Metrics)
	assert.Equal(t, "Time: 4, Money: 1, Labor: 3", cfg.Characters[4].StartingResources)
}

func TestGeneratedDefaultPassesSchema(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	require.NoError(t, err)
	assert.Equal(t, "Deliberative Democracy", cfg.Simulation.Name)
}

func TestFromYAMLRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"empty":           ``,
		"no characters":   "metrics:\n  environment: 1\n",
		"unknown field":   "characters:\n  - name: A\n    mood: happy\n",
		"metric not int":  "metrics:\n  economy: lots\ncharacters:\n  - name: A\n",
		"project no reqs": "characters:\n  - name: A\nprojects:\n  - name: P\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestValidateSemanticRules(t *testing.T) {
	_, err := config.FromYAML([]byte("characters:\n  - name: A\n  - name: A\n"))
	assert.ErrorContains(t, err, "duplicate character name")

	_, err = config.FromYAML([]byte("characters:\n  - name: A\n    starting_resources: \"Time: -1\"\n"))
	assert.ErrorContains(t, err, "negative time")

	_, err = config.FromYAML([]byte("characters:\n  - name: A\nnotify:\n  webhooks:\n    - url: ftp://example.com\n"))
	assert.ErrorContains(t, err, "http(s)")

	disabled := "characters:\n  - name: A\nnotify:\n  webhooks:\n    - url: ftp://example.com\n      enabled: false\n"
	cfg, err := config.FromYAML([]byte(disabled))
	require.NoError(t, err)
	assert.False(t, cfg.Notify.Webhooks[0].Active())
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = config.Load(dir)
	assert.ErrorContains(t, err, "not found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "deliberation.yml"), []byte(config.GenerateDefault()), 0o644))
	cfg, err = config.LoadOptional(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "project-5", cfg.Projects[4].ID)
}

func TestParseEnvDefaults(t *testing.T) {
	t.Setenv("DELIB_ADDR", "0.0.0.0:9000")
	e, err := config.ParseEnv()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", e.Addr)
	assert.Equal(t, "/v0", e.BasePath)
	assert.Equal(t, "info", e.LogLevel)
}
