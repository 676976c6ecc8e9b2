// Package config resolves the agent and plan directories and loads the
// optional server settings file.
package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type agentDirKey struct{}
type planDirKey struct{}

// WithAgentDir stores the agent directory path in the context.
func WithAgentDir(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, agentDirKey{}, dir)
}

// AgentDirFrom returns the agent directory from the context, if set.
func AgentDirFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(agentDirKey{})
	s, ok := v.(string)
	return s, ok
}

// MustAgentDirFrom returns the agent directory from the context, or panics
// if not set.
func MustAgentDirFrom(ctx context.Context) string {
	if d, ok := AgentDirFrom(ctx); ok && d != "" {
		return d
	}
	panic("agent dir missing from context")
}

// WithPlanDir stores the plan directory path in the context.
func WithPlanDir(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, planDirKey{}, dir)
}

// PlanDirFrom returns the plan directory from the context, if set.
func PlanDirFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(planDirKey{})
	s, ok := v.(string)
	return s, ok
}

// ResolveAgentDir returns the agent state directory (override,
// PLANDASH_AGENT_DIR, or default ~/.agent).
func ResolveAgentDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}
	if env := os.Getenv("PLANDASH_AGENT_DIR"); env != "" {
		return filepath.Clean(env), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine user home directory")
	}
	return filepath.Join(home, ".agent"), nil
}

// ResolvePlanDir returns the project plan directory: the override or
// PLANDASH_PLAN_DIR when set, else <cwd>/.plandash when that directory
// exists, else "" (no plan configured).
func ResolvePlanDir(override string) string {
	if override != "" {
		return filepath.Clean(override)
	}
	if env := os.Getenv("PLANDASH_PLAN_DIR"); env != "" {
		return filepath.Clean(env)
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := filepath.Join(wd, ".plandash")
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		return dir
	}
	return ""
}

// Settings holds optional server tuning loaded from <agentDir>/plandash.yaml.
type Settings struct {
	Port       int    `yaml:"port"`
	Host       string `yaml:"host"`
	StaleHours int    `yaml:"stale_hours"`
	APIKey     string `yaml:"api_key"`
}

// LoadSettings loads settings from <agentDir>/plandash.yaml. Returns nil
// settings and nil error if the file is missing.
func LoadSettings(agentDir string) (*Settings, error) {
	data, err := os.ReadFile(SettingsPath(agentDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSettings writes the settings file to <agentDir>/plandash.yaml.
func SaveSettings(agentDir string, s *Settings) error {
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(SettingsPath(agentDir), data, 0o644)
}

// SettingsPath returns <agentDir>/plandash.yaml.
func SettingsPath(agentDir string) string {
	return filepath.Join(agentDir, "plandash.yaml")
}
