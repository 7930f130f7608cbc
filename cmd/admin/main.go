package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
)

var version = "dev"

// Globals are shared by every subcommand.
type Globals struct {
	Data string    `help:"Runtime data directory." default:"./data" type:"path"`
	Out  io.Writer `kong:"-"`
}

func (g *Globals) indexPath() string {
	return filepath.Join(g.Data, "index", "companies.sqlite")
}

// emit writes v as one JSON line.
func (g *Globals) emit(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = g.Out.Write(b)
	return err
}

type CLI struct {
	Globals

	Companies CompaniesCmd `cmd:"" help:"List company records from the index."`
	Show      ShowCmd      `cmd:"" help:"Show one company record with members and invites."`
	Audit     AuditCmd     `cmd:"" help:"Print audit entries from the index or the JSONL log."`
	Snapshots SnapshotsCmd `cmd:"" help:"List snapshots on disk."`
	Inspect   InspectCmd   `cmd:"" help:"Inspect a snapshot file."`
	Trigger   TriggerCmd   `cmd:"" help:"Ask a running server to snapshot or sweep desyncs."`
	Version   kong.VersionFlag
}

func main() {
	ctx := context.Background()
	var cli CLI
	cmd := kong.Parse(&cli,
		kong.Name("companies-admin"),
		kong.Description("Offline inspection of company records, audits and snapshots."),
		kong.Vars{"version": version},
		kong.BindTo(ctx, (*context.Context)(nil)))
	cli.Globals.Out = os.Stdout
	err := cmd.Run(&cli.Globals)
	cmd.FatalIfErrorf(err)
}
