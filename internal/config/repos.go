// File: internal/config/repos.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RepoSeed is one repo allowlist entry as written in repos.yaml. The seed
// command upserts these into repo_profiles; the database copy is what intake
// consults at runtime.
type RepoSeed struct {
	Repo               string   `yaml:"repo"`
	Enabled            *bool    `yaml:"enabled"` // nil means enabled
	DefaultBranch      string   `yaml:"default_branch"`
	AllowedPaths       []string `yaml:"allowed_paths"`
	AcceptanceCommands []string `yaml:"acceptance_commands"`
}

type ReposFile struct {
	Repos []RepoSeed `yaml:"repos"`
}

func LoadReposFile(path string) (*ReposFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read repos file: %w", err)
	}
	var f ReposFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse repos file: %w", err)
	}
	for i, r := range f.Repos {
		if r.Repo == "" {
			return nil, fmt.Errorf("repos[%d]: repo is required", i)
		}
		if r.DefaultBranch == "" {
			f.Repos[i].DefaultBranch = "main"
		}
	}
	return &f, nil
}
