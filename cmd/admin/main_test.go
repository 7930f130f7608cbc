package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"

	"companies.ai/internal/persistence/indexdb"
	"companies.ai/internal/persistence/snapshot"
	"companies.ai/internal/sim/companies"
	"companies.ai/internal/sim/host"
)

func seedIndex(t *testing.T, dataDir string) {
	t.Helper()
	idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "companies.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"Acme Works", "Beta"} {
		if err := idx.SaveCompany(companies.Record{
			Name:        name,
			CEO:         host.UserID("ceo" + name[:1]),
			Members:     []host.UserID{"m1", "m2"},
			LegalPerson: host.UserID("lp" + name[:1]),
			CreatedAt:   created.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	idx.WriteAudit(companies.AuditEntry{Time: created, Company: "Acme Works", Action: "found", Actor: "ceoA"})
	idx.WriteAudit(companies.AuditEntry{Time: created, Company: "Beta", Action: "found", Actor: "ceoB"})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func run(t *testing.T, args ...string) []map[string]any {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Vars{"version": "test"},
		kong.BindTo(context.Background(), (*context.Context)(nil)))
	if err != nil {
		t.Fatalf("kong: %v", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	var buf bytes.Buffer
	cli.Globals.Out = &buf
	if err := kctx.Run(&cli.Globals); err != nil {
		t.Fatalf("run %v: %v", args, err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestAdmin_CompaniesShowAudit(t *testing.T) {
	dir := t.TempDir()
	seedIndex(t, dir)

	list := run(t, "companies", "--data", dir)
	if len(list) != 2 || list[0]["name"] != "Acme Works" || list[0]["members"] != float64(2) {
		t.Fatalf("companies = %v", list)
	}

	show := run(t, "show", "acme", "works", "--data", dir)
	if len(show) != 1 || show[0]["legal_person"] != "lpA" {
		t.Fatalf("show = %v", show)
	}

	audit := run(t, "audit", "--company", "Beta", "--data", dir)
	if len(audit) != 1 || audit[0]["actor"] != "ceoB" {
		t.Fatalf("audit = %v", audit)
	}
}

func TestAdmin_SnapshotsAndInspect(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	snap := snapshot.SnapshotV1{
		Header:    snapshot.Header{ServerID: "srv", TakenAt: ts},
		Companies: []companies.Record{{Name: "Acme", LegalPerson: "lp"}},
	}
	if err := snapshot.WriteSnapshot(filepath.Join(dir, "snapshots", snapshot.FileName(ts)), snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	list := run(t, "snapshots", "--data", dir)
	if len(list) != 1 || list[0]["companies"] != float64(1) {
		t.Fatalf("snapshots = %v", list)
	}
	full := run(t, "inspect", "--full", "--data", dir)
	if len(full) != 2 || full[1]["name"] != "Acme" {
		t.Fatalf("inspect = %v", full)
	}
}
