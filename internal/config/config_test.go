package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
service:
  name: modwatch-test
  port: 9090
database:
  driver: sqlite3
  path: /tmp/modwatch.db
signals:
  scorers:
    - name: detox
      kind: local
      base_url: http://localhost:5001
    - name: perspective
      kind: external
      base_url: http://localhost:5002
      timeout: 2s
  thresholds:
    toxicity:
      directed: 0.80
      undirected: 0.90
review:
  backends:
    - name: primary
      model: gpt-4o-mini
      api_key_env: OPENAI_API_KEY
      priority: 30
    - name: secondary
      model: llama3
      base_url: http://localhost:11434/v1
      priority: 20
actions:
  enabled: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "modwatch-test", cfg.Service.Name)
	assert.Equal(t, 9090, cfg.Service.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Len(t, cfg.Signals.Scorers, 2)
	assert.Equal(t, "perspective", cfg.Signals.Scorers[1].Name)
	assert.Equal(t, 2*time.Second, cfg.Signals.Scorers[1].Timeout)
	assert.Len(t, cfg.Review.Backends, 2)
	assert.True(t, cfg.Actions.Enabled)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, defaultConcurrency, cfg.Service.Concurrency)
	assert.Equal(t, defaultScorerTimeout, cfg.Signals.Scorers[0].Timeout)
	assert.Equal(t, defaultLowConfidenceBound, cfg.Signals.LowConfidenceBound)
	assert.Equal(t, defaultValidationFloor, cfg.Signals.ValidationFloor)
	assert.Equal(t, defaultReasonTemplate, cfg.Actions.ReasonTemplate)
	assert.Equal(t, defaultMinRemoveConsensus, cfg.Actions.MinRemoveConsensus)
	assert.InDelta(t, defaultRemoveFloor, cfg.Actions.RemoveFloor, 1e-9)
	assert.Equal(t, defaultLookbackDays, cfg.Reconcile.LookbackDays)
	assert.Equal(t, defaultDecisionLag, cfg.Reconcile.DecisionLag)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MODWATCH_PORT", "7070")
	t.Setenv("DRY_RUN", "yes")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("COMMUNITIES", "pics, videos")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Service.Port)
	assert.True(t, cfg.Service.DryRun)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"pics", "videos"}, cfg.Source.Communities)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no scorers",
			mutate:  func(c *Config) { c.Signals.Scorers = nil },
			wantErr: "at least one scorer",
		},
		{
			name: "bad scorer kind",
			mutate: func(c *Config) {
				c.Signals.Scorers[0].Kind = "remote"
			},
			wantErr: "invalid kind",
		},
		{
			name: "two local scorers",
			mutate: func(c *Config) {
				c.Signals.Scorers[1].Kind = "local"
			},
			wantErr: "at most one local scorer",
		},
		{
			name: "bound above floor",
			mutate: func(c *Config) {
				c.Signals.LowConfidenceBound = 0.70
				c.Signals.ValidationFloor = 0.60
			},
			wantErr: "low_confidence_bound must be below validation_floor",
		},
		{
			name: "directed threshold above undirected",
			mutate: func(c *Config) {
				c.Signals.Thresholds["toxicity"] = LabelThreshold{Directed: 0.95, Undirected: 0.90}
			},
			wantErr: "directed threshold must not exceed undirected",
		},
		{
			name:    "no backends",
			mutate:  func(c *Config) { c.Review.Backends = nil },
			wantErr: "at least one backend",
		},
		{
			name: "backend without model",
			mutate: func(c *Config) {
				c.Review.Backends[0].Model = ""
			},
			wantErr: "backend name and model",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: "unsupported driver",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
