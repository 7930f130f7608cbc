package tuning

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Switches holds the live configuration. The admin "configure" command
// mutates it while the engine reads it from any goroutine.
type Switches struct {
	mu sync.RWMutex
	t  Tuning
}

func NewSwitches(t Tuning) *Switches {
	return &Switches{t: t}
}

func (s *Switches) Get() Tuning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.t
	t.ReputationBonusSources = append([]string(nil), s.t.ReputationBonusSources...)
	return t
}

type boolField struct {
	get func(*Tuning) bool
	set func(*Tuning, bool)
}

var boolFields = map[string]boolField{
	"property_limits_enabled": {
		func(t *Tuning) bool { return t.PropertyLimitsEnabled },
		func(t *Tuning, v bool) { t.PropertyLimitsEnabled = v },
	},
	"deny_legal_person_reputation": {
		func(t *Tuning) bool { return t.DenyLegalPersonReputation },
		func(t *Tuning, v bool) { t.DenyLegalPersonReputation = v },
	},
	"deny_members_external_reputation": {
		func(t *Tuning) bool { return t.DenyMembersExternalReputation },
		func(t *Tuning, v bool) { t.DenyMembersExternalReputation = v },
	},
	"deny_members_internal_reputation": {
		func(t *Tuning) bool { return t.DenyMembersInternalReputation },
		func(t *Tuning, v bool) { t.DenyMembersInternalReputation = v },
	},
	"reputation_averages_enabled": {
		func(t *Tuning) bool { return t.ReputationAveragesEnabled },
		func(t *Tuning, v bool) { t.ReputationAveragesEnabled = v },
	},
	"reputation_averages_bonus_enabled": {
		func(t *Tuning) bool { return t.ReputationAveragesBonusEnabled },
		func(t *Tuning, v bool) { t.ReputationAveragesBonusEnabled = v },
	},
	"citizenship_inheritance_enabled": {
		func(t *Tuning) bool { return t.CitizenshipInheritanceEnabled },
		func(t *Tuning, v bool) { t.CitizenshipInheritanceEnabled = v },
	},
}

// Keys lists the runtime-mutable switch names.
func (s *Switches) Keys() []string {
	out := make([]string, 0, len(boolFields))
	for k := range boolFields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the current value of a switch.
func (s *Switches) Lookup(key string) (bool, error) {
	f, ok := boolFields[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return false, fmt.Errorf("unknown setting %q", key)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return f.get(&s.t), nil
}

// Set parses value as a bool and stores it. Returns the previous value.
func (s *Switches) Set(key, value string) (bool, error) {
	f, ok := boolFields[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return false, fmt.Errorf("unknown setting %q", key)
	}
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("setting %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := f.get(&s.t)
	f.set(&s.t, v)
	return prev, nil
}
