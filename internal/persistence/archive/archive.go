package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"companies.ai/internal/persistence/snapshot"
)

type Meta struct {
	Snapshot  string    `json:"snapshot"`
	ServerID  string    `json:"server_id"`
	TakenAt   time.Time `json:"taken_at"`
	Companies int       `json:"companies"`
	MovedAt   string    `json:"moved_at"`
}

// PruneSnapshots keeps the newest keep snapshots in snapDir and moves the
// rest to archiveDir/<YYYY-MM-DD>/, each next to a <name>.meta.json.
// It returns the archived paths.
func PruneSnapshots(snapDir, archiveDir string, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	all, err := snapshot.List(snapDir)
	if err != nil {
		return nil, err
	}
	if len(all) <= keep {
		return nil, nil
	}
	var moved []string
	for _, src := range all[:len(all)-keep] {
		h, err := snapshot.ReadHeader(src)
		if err != nil {
			return moved, fmt.Errorf("%s: %w", filepath.Base(src), err)
		}
		day := h.TakenAt.UTC().Format("2006-01-02")
		if h.TakenAt.IsZero() {
			day = "undated"
		}
		dir := filepath.Join(archiveDir, day)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return moved, err
		}
		dst := filepath.Join(dir, filepath.Base(src))
		if err := moveFile(src, dst); err != nil {
			return moved, err
		}
		meta := Meta{
			Snapshot:  filepath.Base(dst),
			ServerID:  h.ServerID,
			TakenAt:   h.TakenAt,
			Companies: h.Companies,
			MovedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		}
		if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
			_ = os.WriteFile(dst+".meta.json", b, 0o644)
		}
		moved = append(moved, dst)
	}
	return moved, nil
}

// moveFile renames, falling back to copy+remove across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
