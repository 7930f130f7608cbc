package companies

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"companies.ai/internal/sim/host"
	"companies.ai/internal/sim/host/memhost"
	"companies.ai/internal/sim/sched"
	"companies.ai/internal/sim/tuning"
)

type fixture struct {
	t     *testing.T
	w     *memhost.World
	sw    *tuning.Switches
	sched *sched.Manual
	e     *Engine
	audit *memAudit
}

type memAudit struct{ entries []AuditEntry }

func (m *memAudit) WriteAudit(e AuditEntry) { m.entries = append(m.entries, e) }

func (m *memAudit) actions() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

func newFixture(t *testing.T, mutate ...func(*tuning.Tuning)) *fixture {
	t.Helper()
	cfg := tuning.Defaults()
	for _, m := range mutate {
		m(&cfg)
	}
	log := zerolog.Nop()
	f := &fixture{
		t:     t,
		w:     memhost.New(cfg.BaseHomesteadPlots, log),
		sw:    tuning.NewSwitches(cfg),
		sched: sched.NewManual(log),
		audit: &memAudit{},
	}
	e, err := New(Deps{Host: f.w, Switches: f.sw, Sched: f.sched, Log: log, Audit: f.audit})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f.e = e
	return f
}

func (f *fixture) user(name string) host.UserID {
	return f.w.AddUser(name).ID
}

// found runs the dry run and commit, then delivers queued events.
func (f *fixture) found(ceo host.UserID, name string) *Company {
	f.t.Helper()
	p, err := f.e.DryRun(ceo, name)
	if err != nil {
		f.t.Fatalf("dry run %s: %v", name, err)
	}
	c, err := f.e.Commit(ceo, name, p)
	if err != nil {
		f.t.Fatalf("commit %s: %v", name, err)
	}
	f.w.Flush()
	return c
}

func (f *fixture) hire(c *Company, u host.UserID) {
	f.t.Helper()
	if err := f.e.Invite(c.Name(), c.CEO(), u); err != nil {
		f.t.Fatalf("invite: %v", err)
	}
	if err := f.e.Join(c.Name(), u); err != nil {
		f.t.Fatalf("join: %v", err)
	}
	f.w.Flush()
}

func (f *fixture) deed(id host.DeedID) host.Deed {
	f.t.Helper()
	d, ok := f.w.Deed(id)
	if !ok {
		f.t.Fatalf("deed %s missing", id)
	}
	return d
}

func (f *fixture) hq(c *Company) host.Deed {
	f.t.Helper()
	lp, _ := f.w.User(c.LegalPerson())
	if lp.HomesteadDeed == "" {
		f.t.Fatalf("%s has no hq", c.Name())
	}
	return f.deed(lp.HomesteadDeed)
}

func (f *fixture) account(c *Company) host.Account {
	f.t.Helper()
	a, ok := f.w.Account(c.Record().Account)
	if !ok {
		f.t.Fatalf("account of %s missing", c.Name())
	}
	return a
}

func wantErr(t *testing.T, err, sentinel error) {
	t.Helper()
	if !errors.Is(err, sentinel) {
		t.Fatalf("want %v, got %v", sentinel, err)
	}
}
