package model

import "time"

// RepoProfile is the per-repository contract consulted at intake and by the
// policy engine. An unknown or disabled repo is rejected before a Job row is
// ever created.
type RepoProfile struct {
	Repo               string // "org/name", primary key
	Enabled            bool
	DefaultBranch      string
	AllowedPaths       []string
	AcceptanceCommands []string
	UpdatedAt          time.Time
}

func NewRepoProfile(repo, defaultBranch string, allowedPaths, acceptanceCommands []string) *RepoProfile {
	return &RepoProfile{
		Repo:               repo,
		Enabled:            true,
		DefaultBranch:      defaultBranch,
		AllowedPaths:       allowedPaths,
		AcceptanceCommands: acceptanceCommands,
		UpdatedAt:          time.Now(),
	}
}
