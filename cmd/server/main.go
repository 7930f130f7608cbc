package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"companies.ai/internal/commands"
	"companies.ai/internal/persistence/indexdb"
	persistlog "companies.ai/internal/persistence/log"
	"companies.ai/internal/persistence/snapshot"
	"companies.ai/internal/sim/companies"
	"companies.ai/internal/sim/host/memhost"
	"companies.ai/internal/sim/sched"
	"companies.ai/internal/sim/tuning"
	"companies.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "./configs/companies.yaml", "path to companies.yaml (empty for defaults)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		serverID   = flag.String("server_id", "", "server id stamped on snapshots (default: random)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (company records + audit index)")

		snapPath     = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest   = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		snapEvery    = flag.Duration("snapshot_every", 10*time.Minute, "periodic snapshot interval (0 disables)")
		snapKeep     = flag.Int("snapshot_keep", 12, "snapshots kept in <data>/snapshots; older ones are archived")
		adminToken   = flag.String("admin_token", "", "HELLO auth token granting admin commands (or set COMPANIES_ADMIN_TOKEN)")
		admins       = flag.String("admins", "", "comma-separated user names that are always admins")
		autoRegister = flag.Bool("auto_register", true, "create unknown users on HELLO")
		pretty       = flag.Bool("pretty", false, "human-readable console logs")
		logLevel     = flag.String("log_level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := newLogger(*pretty, *logLevel)

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		logger.Warn().Str("path", *configPath).Msg("config not found; using defaults")
		if tune, err = tuning.Load(""); err != nil {
			logger.Fatal().Err(err).Msg("load config")
		}
	}
	sw := tuning.NewSwitches(tune)

	id := strings.TrimSpace(*serverID)
	if id == "" {
		id = uuid.NewString()
	}
	logger = logger.With().Str("server_id", id).Logger()
	_ = os.MkdirAll(*dataDir, 0o755)

	// Host world and company records (fresh or resumed from snapshot).
	w := memhost.New(tune.BaseHomesteadPlots, logger.With().Str("component", "memhost").Logger())
	var records []companies.Record

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad, err = snapshot.Latest(filepath.Join(*dataDir, "snapshots"))
		if err != nil {
			logger.Fatal().Err(err).Msg("find latest snapshot")
		}
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatal().Err(err).Str("path", snapshotToLoad).Msg("read snapshot")
		}
		if err := w.Import(snap.World); err != nil {
			logger.Fatal().Err(err).Msg("import snapshot world")
		}
		applySwitches(sw, snap.Switches, logger)
		records = snap.Companies
		logger.Info().Str("snapshot", filepath.Base(snapshotToLoad)).Int("companies", len(records)).Msg("resumed from snapshot")
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "companies.sqlite"))
		if err != nil {
			logger.Fatal().Err(err).Msg("open index")
		}
		defer idx.Close()
		stored, err := idx.LoadCompanies(context.Background())
		if err != nil {
			logger.Fatal().Err(err).Msg("load company records")
		}
		// The index is written on every mutation; it wins over the snapshot.
		if len(stored) > 0 {
			records = stored
			logger.Info().Int("companies", len(stored)).Msg("company records loaded from index")
		}
	} else {
		logger.Info().Msg("index disabled (-disable_db)")
	}

	auditLog := persistlog.NewAuditLogger(*dataDir, logger.With().Str("component", "audit").Logger())
	defer auditLog.Close()
	audit := companies.AuditSinks{auditLog}

	timer := sched.NewTimer(logger.With().Str("component", "sched").Logger())
	deps := companies.Deps{
		Host:     w,
		Switches: sw,
		Sched:    timer,
		Log:      logger.With().Str("component", "companies").Logger(),
	}
	if idx != nil {
		deps.Store = idx
		audit = append(audit, idx)
	}
	deps.Audit = audit
	engine, err := companies.New(deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("company engine")
	}
	if err := engine.Restore(records); err != nil {
		logger.Warn().Err(err).Msg("some company records were not restored")
	}

	ctx, cancel := signalContext()
	defer cancel()

	rt := &serverRuntime{
		id:       id,
		dataDir:  *dataDir,
		keep:     *snapKeep,
		world:    w,
		engine:   engine,
		switches: sw,
		index:    idx,
		log:      logger,
	}

	go w.Bus().Run(ctx)
	go rt.runSweeps(ctx, tune.DesyncInterval())
	go rt.runSnapshots(ctx, *snapEvery)

	hub := ws.NewHub(logger.With().Str("component", "ws").Logger())
	w.AddNotifier(hub)
	rt.hub = hub

	token := strings.TrimSpace(*adminToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("COMPANIES_ADMIN_TOKEN"))
	}
	wsSrv := ws.NewServer(w, commands.New(engine, w, sw, logger.With().Str("component", "commands").Logger()), hub, ws.Options{
		AdminToken:   token,
		Admins:       splitList(*admins),
		AutoRegister: *autoRegister,
	}, logger.With().Str("component", "ws").Logger())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.metricsHandler())
	if envBool("COMPANIES_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/snapshot", rt.snapshotHandler())
		mux.HandleFunc("/admin/v1/desync", rt.desyncHandler())
	} else {
		logger.Info().Msg("admin endpoints disabled (COMPANIES_ENABLE_ADMIN_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().Str("addr", *addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("ListenAndServe")
	}

	// Drain deferred work and queued events before the final snapshot and
	// before the index closes.
	timer.Wait()
	w.Flush()
	if path, err := rt.snapshot(); err != nil {
		logger.Error().Err(err).Msg("final snapshot")
	} else {
		logger.Info().Str("path", path).Msg("final snapshot written")
	}
}

func newLogger(pretty bool, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if pretty {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"})
	} else {
		l = zerolog.New(os.Stdout)
	}
	return l.Level(lvl).With().Timestamp().Str("service", "companies").Logger()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
