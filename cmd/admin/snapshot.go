package main

import (
	"fmt"
	"path/filepath"

	"companies.ai/internal/persistence/snapshot"
)

type SnapshotsCmd struct{}

func (c *SnapshotsCmd) Run(g *Globals) error {
	paths, err := snapshot.List(filepath.Join(g.Data, "snapshots"))
	if err != nil {
		return err
	}
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if err := g.emit(map[string]any{
			"path":      p,
			"server_id": h.ServerID,
			"taken_at":  h.TakenAt,
			"companies": h.Companies,
		}); err != nil {
			return err
		}
	}
	return nil
}

type InspectCmd struct {
	Path string `arg:"" optional:"" help:"Snapshot path (default: latest in <data>/snapshots)."`
	Full bool   `help:"Print every company record, not just the summary."`
}

func (c *InspectCmd) Run(g *Globals) error {
	path := c.Path
	if path == "" {
		latest, err := snapshot.Latest(filepath.Join(g.Data, "snapshots"))
		if err != nil {
			return err
		}
		if latest == "" {
			return fmt.Errorf("no snapshots in %s", filepath.Join(g.Data, "snapshots"))
		}
		path = latest
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return err
	}
	if err := g.emit(map[string]any{
		"path":        path,
		"header":      snap.Header,
		"users":       len(snap.World.Users),
		"deeds":       len(snap.World.Deeds),
		"accounts":    len(snap.World.Accounts),
		"settlements": len(snap.World.Settlements),
		"switches":    snap.Switches,
	}); err != nil {
		return err
	}
	if !c.Full {
		return nil
	}
	for _, r := range snap.Companies {
		if err := g.emit(r); err != nil {
			return err
		}
	}
	return nil
}
