package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Tuning is the company engine configuration. YAML first, then env overrides.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	PropertyLimitsEnabled          bool `yaml:"property_limits_enabled" env:"COMPANIES_PROPERTY_LIMITS_ENABLED"`
	DenyLegalPersonReputation      bool `yaml:"deny_legal_person_reputation" env:"COMPANIES_DENY_LEGAL_PERSON_REPUTATION"`
	DenyMembersExternalReputation  bool `yaml:"deny_members_external_reputation" env:"COMPANIES_DENY_MEMBERS_EXTERNAL_REPUTATION"`
	DenyMembersInternalReputation  bool `yaml:"deny_members_internal_reputation" env:"COMPANIES_DENY_MEMBERS_INTERNAL_REPUTATION"`
	ReputationAveragesEnabled      bool `yaml:"reputation_averages_enabled" env:"COMPANIES_REPUTATION_AVERAGES_ENABLED"`
	ReputationAveragesBonusEnabled bool `yaml:"reputation_averages_bonus_enabled" env:"COMPANIES_REPUTATION_AVERAGES_BONUS_ENABLED"`
	CitizenshipInheritanceEnabled  bool `yaml:"citizenship_inheritance_enabled" env:"COMPANIES_CITIZENSHIP_INHERITANCE_ENABLED"`

	ReputationBonusSources []string `yaml:"reputation_bonus_sources" env:"COMPANIES_REPUTATION_BONUS_SOURCES" envSeparator:","`

	TaskDelayMs      int `yaml:"task_delay_ms" env:"COMPANIES_TASK_DELAY_MS"`
	TaskDelayLongMs  int `yaml:"task_delay_long_ms" env:"COMPANIES_TASK_DELAY_LONG_MS"`
	NameMinLen       int `yaml:"name_min_len" env:"COMPANIES_NAME_MIN_LEN"`
	NameMaxLen       int `yaml:"name_max_len" env:"COMPANIES_NAME_MAX_LEN"`
	DesyncCheckEvery int `yaml:"desync_check_every_s" env:"COMPANIES_DESYNC_CHECK_EVERY_S"`

	BaseHomesteadPlots int `yaml:"base_homestead_plots" env:"COMPANIES_BASE_HOMESTEAD_PLOTS"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:                "1.0",
		PropertyLimitsEnabled:          true,
		ReputationAveragesEnabled:      false,
		ReputationAveragesBonusEnabled: true,
		CitizenshipInheritanceEnabled:  true,
		ReputationBonusSources:         []string{"SpeaksWellOfOthersBonus"},
		TaskDelayMs:                    250,
		TaskDelayLongMs:                1000,
		NameMinLen:                     3,
		NameMaxLen:                     50,
		DesyncCheckEvery:               300,
		BaseHomesteadPlots:             4,
	}
}

// Load reads path over Defaults(). An empty path yields defaults plus env.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return t, err
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("companies.yaml: %w", err)
		}
	}
	if err := env.Parse(&t); err != nil {
		return t, fmt.Errorf("parse env: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("companies.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.NameMinLen < 1 {
		return fmt.Errorf("name_min_len must be >= 1")
	}
	if t.NameMaxLen < t.NameMinLen {
		return fmt.Errorf("name_max_len must be >= name_min_len")
	}
	if t.TaskDelayMs <= 0 || t.TaskDelayLongMs <= 0 {
		return fmt.Errorf("task delays must be > 0")
	}
	if t.DesyncCheckEvery < 0 {
		return fmt.Errorf("desync_check_every_s must be >= 0")
	}
	if t.BaseHomesteadPlots <= 0 {
		return fmt.Errorf("base_homestead_plots must be > 0")
	}
	return nil
}

func (t Tuning) TaskDelay() time.Duration     { return time.Duration(t.TaskDelayMs) * time.Millisecond }
func (t Tuning) TaskDelayLong() time.Duration { return time.Duration(t.TaskDelayLongMs) * time.Millisecond }

func (t Tuning) DesyncInterval() time.Duration {
	return time.Duration(t.DesyncCheckEvery) * time.Second
}

func (t Tuning) IsBonusSource(name string) bool {
	for _, s := range t.ReputationBonusSources {
		if s == name {
			return true
		}
	}
	return false
}
