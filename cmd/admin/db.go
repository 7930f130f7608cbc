package main

import (
	"context"
	"fmt"
	"strings"

	"companies.ai/internal/persistence/indexdb"
	persistlog "companies.ai/internal/persistence/log"
)

type CompaniesCmd struct {
	DB string `help:"SQLite index path (default: <data>/index/companies.sqlite)."`
}

func (c *CompaniesCmd) Run(ctx context.Context, g *Globals) error {
	db, err := indexdb.OpenReadOnly(dbPath(c.DB, g))
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer db.Close()
	records, err := indexdb.LoadCompanies(ctx, db)
	if err != nil {
		return fmt.Errorf("load companies: %w", err)
	}
	for _, r := range records {
		if err := g.emit(map[string]any{
			"name":       r.Name,
			"ceo":        r.CEO,
			"members":    len(r.Members),
			"invites":    len(r.Invites),
			"created_at": r.CreatedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

type ShowCmd struct {
	Name []string `arg:"" help:"Company name (may contain spaces)."`
	DB   string   `help:"SQLite index path (default: <data>/index/companies.sqlite)."`
}

func (c *ShowCmd) Run(ctx context.Context, g *Globals) error {
	name := strings.TrimSpace(strings.Join(c.Name, " "))
	db, err := indexdb.OpenReadOnly(dbPath(c.DB, g))
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer db.Close()
	records, err := indexdb.LoadCompanies(ctx, db)
	if err != nil {
		return fmt.Errorf("load companies: %w", err)
	}
	for _, r := range records {
		if strings.EqualFold(r.Name, name) {
			return g.emit(r)
		}
	}
	return fmt.Errorf("no company named %q", name)
}

type AuditCmd struct {
	Company string `help:"Only entries for this company."`
	Limit   int    `help:"Newest entries to print (index only)." default:"50"`
	Source  string `help:"Where to read from." enum:"index,jsonl" default:"index"`
	DB      string `help:"SQLite index path (default: <data>/index/companies.sqlite)."`
}

func (c *AuditCmd) Run(ctx context.Context, g *Globals) error {
	if c.Source == "jsonl" {
		recs, err := persistlog.ReadAudit(g.Data, c.Company)
		if err != nil {
			return fmt.Errorf("read audit log: %w", err)
		}
		for _, r := range recs {
			if err := g.emit(r); err != nil {
				return err
			}
		}
		return nil
	}

	db, err := indexdb.OpenReadOnly(dbPath(c.DB, g))
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer db.Close()
	rows, err := indexdb.Audits(ctx, db, c.Company, c.Limit)
	if err != nil {
		return fmt.Errorf("query audits: %w", err)
	}
	for _, r := range rows {
		if err := g.emit(map[string]any{
			"seq":     r.Seq,
			"time":    r.Time,
			"company": r.Company,
			"action":  r.Action,
			"actor":   r.Actor,
			"target":  r.Target,
			"detail":  r.Detail,
		}); err != nil {
			return err
		}
	}
	return nil
}

func dbPath(flag string, g *Globals) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	return g.indexPath()
}
