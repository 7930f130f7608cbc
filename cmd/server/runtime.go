package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"companies.ai/internal/persistence/archive"
	"companies.ai/internal/persistence/indexdb"
	"companies.ai/internal/persistence/snapshot"
	"companies.ai/internal/sim/companies"
	"companies.ai/internal/sim/host/memhost"
	"companies.ai/internal/sim/tuning"
	"companies.ai/internal/transport/ws"
)

type serverRuntime struct {
	id       string
	dataDir  string
	keep     int
	world    *memhost.World
	engine   *companies.Engine
	switches *tuning.Switches
	index    *indexdb.SQLiteIndex
	hub      *ws.Hub
	log      zerolog.Logger

	snapMu sync.Mutex

	sweepMu   sync.Mutex
	sweeps    uint64
	corrected uint64
}

func applySwitches(sw *tuning.Switches, saved map[string]bool, log zerolog.Logger) {
	for k, v := range saved {
		if _, err := sw.Set(k, strconv.FormatBool(v)); err != nil {
			log.Warn().Err(err).Str("switch", k).Msg("ignoring saved switch")
		}
	}
}

func currentSwitches(sw *tuning.Switches) map[string]bool {
	out := map[string]bool{}
	for _, k := range sw.Keys() {
		if v, err := sw.Lookup(k); err == nil {
			out[k] = v
		}
	}
	return out
}

// snapshot writes the world, every company and the switches to
// <data>/snapshots, then archives snapshots beyond the retention count.
func (rt *serverRuntime) snapshot() (string, error) {
	rt.snapMu.Lock()
	defer rt.snapMu.Unlock()

	now := time.Now().UTC()
	snap := snapshot.SnapshotV1{
		Header:    snapshot.Header{ServerID: rt.id, TakenAt: now},
		World:     rt.world.Export(),
		Companies: rt.engine.Records(),
		Switches:  currentSwitches(rt.switches),
	}
	snapDir := filepath.Join(rt.dataDir, "snapshots")
	path := filepath.Join(snapDir, snapshot.FileName(now))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	rt.index.RecordSnapshot(path, snap)

	moved, err := archive.PruneSnapshots(snapDir, filepath.Join(rt.dataDir, "archives"), rt.keep)
	if err != nil {
		rt.log.Warn().Err(err).Msg("archive old snapshots")
	} else if len(moved) > 0 {
		rt.log.Info().Int("archived", len(moved)).Msg("archived old snapshots")
	}
	return path, nil
}

func (rt *serverRuntime) runSnapshots(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			path, err := rt.snapshot()
			if err != nil {
				rt.log.Error().Err(err).Msg("snapshot write")
				continue
			}
			rt.log.Debug().Str("path", path).Msg("snapshot written")
		}
	}
}

// sweep runs the HQ and citizenship desync checks for every company.
func (rt *serverRuntime) sweep() []companies.Report {
	reports := rt.engine.CheckAllDesync()
	rt.sweepMu.Lock()
	rt.sweeps++
	for _, r := range reports {
		rt.corrected++
		rt.log.Info().Str("report", r.Message).Msg("desync corrected")
	}
	rt.sweepMu.Unlock()
	return reports
}

func (rt *serverRuntime) runSweeps(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rt.sweep()
		}
	}
}

func (rt *serverRuntime) metricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		rt.sweepMu.Lock()
		sweeps, corrected := rt.sweeps, rt.corrected
		rt.sweepMu.Unlock()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP companies_total Current number of companies.\n")
		fmt.Fprintf(rw, "# TYPE companies_total gauge\n")
		fmt.Fprintf(rw, "companies_total %d\n", len(rt.engine.Companies()))
		fmt.Fprintf(rw, "# HELP companies_bus_pending Queued host events and commits.\n")
		fmt.Fprintf(rw, "# TYPE companies_bus_pending gauge\n")
		fmt.Fprintf(rw, "companies_bus_pending %d\n", rt.world.Bus().Pending())
		fmt.Fprintf(rw, "# HELP companies_desync_sweeps_total Desync sweeps run.\n")
		fmt.Fprintf(rw, "# TYPE companies_desync_sweeps_total counter\n")
		fmt.Fprintf(rw, "companies_desync_sweeps_total %d\n", sweeps)
		fmt.Fprintf(rw, "# HELP companies_desync_corrected_total Desyncs corrected by sweeps.\n")
		fmt.Fprintf(rw, "# TYPE companies_desync_corrected_total counter\n")
		fmt.Fprintf(rw, "companies_desync_corrected_total %d\n", corrected)
		if rt.hub != nil {
			fmt.Fprintf(rw, "# HELP companies_notices_dropped_total Notices dropped for slow clients.\n")
			fmt.Fprintf(rw, "# TYPE companies_notices_dropped_total counter\n")
			fmt.Fprintf(rw, "companies_notices_dropped_total %d\n", rt.hub.Dropped())
		}
		if rt.index != nil {
			st := rt.index.Stats()
			fmt.Fprintf(rw, "# HELP companies_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE companies_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "companies_index_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# HELP companies_index_dropped_total Index writes dropped under backpressure.\n")
			fmt.Fprintf(rw, "# TYPE companies_index_dropped_total counter\n")
			fmt.Fprintf(rw, "companies_index_dropped_total{kind=%q} %d\n", "audit", st.DropAuditTotal)
			fmt.Fprintf(rw, "companies_index_dropped_total{kind=%q} %d\n", "snapshot", st.DropSnapshotTotal)
			fmt.Fprintf(rw, "# HELP companies_index_write_errors_total Index write errors.\n")
			fmt.Fprintf(rw, "# TYPE companies_index_write_errors_total counter\n")
			fmt.Fprintf(rw, "companies_index_write_errors_total %d\n", st.WriteErrorTotal)
		}
	}
}

// snapshotHandler takes a snapshot on demand (loopback only).
func (rt *serverRuntime) snapshotHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		path, err := rt.snapshot()
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": path})
	}
}

// desyncHandler runs a sweep on demand (loopback only).
func (rt *serverRuntime) desyncHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		reports := rt.sweep()
		out := make([]map[string]any, 0, len(reports))
		for _, rep := range reports {
			out = append(out, map[string]any{"corrected": rep.Corrected, "message": rep.Message})
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "reports": out})
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
