package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_YAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "companies.yaml")
	raw := []byte("property_limits_enabled: false\ndeny_members_internal_reputation: true\ntask_delay_ms: 100\n")
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PropertyLimitsEnabled {
		t.Fatalf("property limits should be off")
	}
	if !cfg.DenyMembersInternalReputation {
		t.Fatalf("internal reputation deny should be on")
	}
	if cfg.TaskDelayMs != 100 || cfg.TaskDelayLongMs != 1000 {
		t.Fatalf("delays: %d %d", cfg.TaskDelayMs, cfg.TaskDelayLongMs)
	}
	if cfg.NameMinLen != 3 || cfg.NameMaxLen != 50 {
		t.Fatalf("name bounds: %d %d", cfg.NameMinLen, cfg.NameMaxLen)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "companies.yaml")
	if err := os.WriteFile(p, []byte("property_limits_enabled: true\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("COMPANIES_PROPERTY_LIMITS_ENABLED", "false")
	t.Setenv("COMPANIES_REPUTATION_BONUS_SOURCES", "A,B")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PropertyLimitsEnabled {
		t.Fatalf("env should win over yaml")
	}
	if !cfg.IsBonusSource("B") || cfg.IsBonusSource("SpeaksWellOfOthersBonus") {
		t.Fatalf("bonus sources: %v", cfg.ReputationBonusSources)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "companies.yaml")
	if err := os.WriteFile(p, []byte("name_min_len: 10\nname_max_len: 5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSwitches_SetAndLookup(t *testing.T) {
	s := NewSwitches(Defaults())
	prev, err := s.Set("property_limits_enabled", "false")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !prev {
		t.Fatalf("previous value should be true")
	}
	if s.Get().PropertyLimitsEnabled {
		t.Fatalf("switch not applied")
	}
	if _, err := s.Set("nope", "true"); err == nil {
		t.Fatalf("expected unknown setting error")
	}
	if _, err := s.Set("reputation_averages_enabled", "maybe"); err == nil {
		t.Fatalf("expected parse error")
	}
	if len(s.Keys()) != 7 {
		t.Fatalf("keys: %v", s.Keys())
	}
}
