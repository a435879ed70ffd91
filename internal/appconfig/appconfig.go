// Package appconfig holds the per-user GitLab project selection.
package appconfig

import "strings"

type GitLab struct {
	ProjectID   string `json:"projectId"`
	ProjectName string `json:"projectName"`
	ProjectPath string `json:"projectPath"`
	ADRPath     string `json:"adrPath"`
	Branch      string `json:"branch"`
}

type AppConfig struct {
	GitLab      GitLab `json:"gitlab"`
	Initialized bool   `json:"initialized"`
}

func Default() AppConfig {
	return AppConfig{
		GitLab: GitLab{
			ADRPath: "adrs",
			Branch:  "main",
		},
	}
}

// Merge overlays the non-empty fields of partial onto current and marks the
// result initialized.
func Merge(current AppConfig, partial GitLab) AppConfig {
	next := current
	if v := strings.TrimSpace(partial.ProjectID); v != "" {
		next.GitLab.ProjectID = v
	}
	if v := strings.TrimSpace(partial.ProjectName); v != "" {
		next.GitLab.ProjectName = v
	}
	if v := strings.TrimSpace(partial.ProjectPath); v != "" {
		next.GitLab.ProjectPath = v
	}
	if v := strings.Trim(strings.TrimSpace(partial.ADRPath), "/"); v != "" {
		next.GitLab.ADRPath = v
	}
	if v := strings.TrimSpace(partial.Branch); v != "" {
		next.GitLab.Branch = v
	}
	next.Initialized = true
	return next
}

func (c AppConfig) IsConfigured() bool {
	return c.Initialized && c.GitLab.ProjectID != ""
}

// WithDefaults fills blank path and branch, for configs saved by older
// clients.
func (c AppConfig) WithDefaults() AppConfig {
	d := Default()
	if c.GitLab.ADRPath == "" {
		c.GitLab.ADRPath = d.GitLab.ADRPath
	}
	if c.GitLab.Branch == "" {
		c.GitLab.Branch = d.GitLab.Branch
	}
	return c
}
