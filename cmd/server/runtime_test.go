package main

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"companies.ai/internal/persistence/snapshot"
	"companies.ai/internal/sim/companies"
	"companies.ai/internal/sim/host/memhost"
	"companies.ai/internal/sim/sched"
	"companies.ai/internal/sim/tuning"
)

func newTestRuntime(t *testing.T, dataDir string) *serverRuntime {
	t.Helper()
	log := zerolog.Nop()
	w := memhost.New(4, log)
	sw := tuning.NewSwitches(tuning.Defaults())
	e, err := companies.New(companies.Deps{Host: w, Switches: sw, Sched: sched.NewManual(log), Log: log})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return &serverRuntime{id: "test", dataDir: dataDir, keep: 1, world: w, engine: e, switches: sw, log: log}
}

func TestRuntime_SnapshotResume(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, dir)
	alice := rt.world.AddUser("alice").ID
	p, err := rt.engine.DryRun(alice, "Acme")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if _, err := rt.engine.Commit(alice, "Acme", p); err != nil {
		t.Fatalf("commit: %v", err)
	}
	rt.world.Flush()
	if _, err := rt.switches.Set("property_limits_enabled", "false"); err != nil {
		t.Fatalf("switch: %v", err)
	}

	if _, err := rt.snapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	last, err := rt.snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	left, _ := snapshot.List(filepath.Join(dir, "snapshots"))
	if len(left) != 1 || left[0] != last {
		t.Fatalf("retained = %v, want only %s", left, last)
	}

	snap, err := snapshot.ReadSnapshot(last)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	rt2 := newTestRuntime(t, dir)
	if err := rt2.world.Import(snap.World); err != nil {
		t.Fatalf("import: %v", err)
	}
	applySwitches(rt2.switches, snap.Switches, zerolog.Nop())
	if err := rt2.engine.Restore(snap.Companies); err != nil {
		t.Fatalf("restore: %v", err)
	}
	c := rt2.engine.Company("Acme")
	if c == nil || c.CEO() != alice {
		t.Fatalf("company not restored")
	}
	if lp, ok := rt2.world.User(c.LegalPerson()); !ok || !lp.Synthetic {
		t.Fatalf("legal person missing from world")
	}
	if rt2.switches.Get().PropertyLimitsEnabled {
		t.Fatalf("switch not restored")
	}
}

func TestRuntime_MetricsAndSweep(t *testing.T) {
	rt := newTestRuntime(t, t.TempDir())
	if reports := rt.sweep(); len(reports) != 0 {
		t.Fatalf("reports = %+v", reports)
	}
	rec := httptest.NewRecorder()
	rt.metricsHandler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"companies_total 0", "companies_desync_sweeps_total 1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestSnapshotHandler_LoopbackOnly(t *testing.T) {
	rt := newTestRuntime(t, t.TempDir())
	req := httptest.NewRequest("POST", "/admin/v1/snapshot", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	rec := httptest.NewRecorder()
	rt.snapshotHandler()(rec, req)
	if rec.Code != 403 {
		t.Fatalf("status = %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	rt.snapshotHandler()(rec, req)
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" alice, ,bob,")
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("splitList = %v", got)
	}
}
