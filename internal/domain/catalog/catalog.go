// Package catalog holds the reference entities tickets point at: teams,
// engineers, and service catalog entries. Tickets carry references into
// this package, never copies, so one report run shares a single instance
// of each entity.
package catalog

import (
	"fmt"
	"strings"
)

// Team is a support group tickets are assigned to
type Team struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// NewTeam creates a team reference entity
func NewTeam(key, name string) (*Team, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("team key cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		name = key
	}
	return &Team{Key: key, Name: name}, nil
}

// Engineer is an individual agent tickets are assigned to
type Engineer struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Team string `json:"team,omitempty"`
}

// NewEngineer creates an engineer reference entity
func NewEngineer(key, name string) (*Engineer, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("engineer key cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		name = key
	}
	return &Engineer{Key: key, Name: name}, nil
}

// Category classifies a catalog entry for KPI trend splitting
type Category int

const (
	CategoryUncategorized Category = iota
	CategoryInfrastructure
	CategoryApplication
)

func (c Category) String() string {
	switch c {
	case CategoryInfrastructure:
		return "infrastructure"
	case CategoryApplication:
		return "application"
	default:
		return "uncategorized"
	}
}

// ParseCategory maps a raw classification value onto the closed set
func ParseCategory(raw string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "uncategorized", "none":
		return CategoryUncategorized, nil
	case "infrastructure", "infra":
		return CategoryInfrastructure, nil
	case "application", "app":
		return CategoryApplication, nil
	default:
		return CategoryUncategorized, fmt.Errorf("unknown catalog category %q", raw)
	}
}

// Entry is a service catalog entry (service plus optional subservice)
type Entry struct {
	Key        string   `json:"key"`
	Name       string   `json:"name"`
	Subservice string   `json:"subservice,omitempty"`
	Category   Category `json:"category"`
}

// NewEntry creates a catalog entry reference entity
func NewEntry(key, name string, category Category) (*Entry, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("catalog entry key cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		name = key
	}
	return &Entry{Key: key, Name: name, Category: category}, nil
}

// Display returns "service / subservice" when a subservice exists
func (e *Entry) Display() string {
	if e.Subservice == "" {
		return e.Name
	}
	return e.Name + " / " + e.Subservice
}
