package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"companies.ai/internal/persistence/snapshot"
	"companies.ai/internal/sim/companies"
	"companies.ai/internal/sim/host"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// sendMu is held shared by every send on ch and exclusively by Close.
	sendMu sync.RWMutex
	closed bool

	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
	writeErrors  atomic.Uint64
}

var (
	_ companies.Store     = (*SQLiteIndex)(nil)
	_ companies.AuditSink = (*SQLiteIndex)(nil)
)

type reqKind int

const (
	reqCompany reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	company  companies.Record
	audit    companies.AuditEntry
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Path      string
	TakenAt   time.Time
	ServerID  string
	Companies int
	Users     int
	Deeds     int
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropAuditTotal    uint64
	DropSnapshotTotal uint64
	WriteErrorTotal   uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS companies (
			name TEXT PRIMARY KEY,
			ceo TEXT NOT NULL,
			legal_person TEXT NOT NULL,
			account TEXT NOT NULL,
			currency TEXT NOT NULL,
			creator TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS company_members (
			company TEXT NOT NULL REFERENCES companies(name) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (company, user_id, role)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_company_members_user ON company_members(user_id);`,
		`CREATE TABLE IF NOT EXISTS audits (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			time TEXT NOT NULL,
			company TEXT NOT NULL,
			action TEXT NOT NULL,
			actor TEXT,
			target TEXT,
			detail TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_company_seq ON audits(company, seq);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			taken_at TEXT NOT NULL,
			server_id TEXT NOT NULL,
			companies INTEGER NOT NULL,
			users INTEGER NOT NULL,
			deeds INTEGER NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.sendMu.Lock()
		s.closed = true
		close(s.ch)
		s.sendMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// SaveCompany queues the record. Records are never dropped: a full queue
// blocks the caller.
func (s *SQLiteIndex) SaveCompany(r companies.Record) error {
	if s == nil {
		return nil
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return fmt.Errorf("indexdb: closed")
	}
	s.ch <- req{kind: reqCompany, company: r}
	return nil
}

func (s *SQLiteIndex) WriteAudit(e companies.AuditEntry) {
	if s == nil {
		return
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: e}:
	default:
		// The JSONL audit log remains the source of truth.
		s.dropAudit.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Path:      path,
		TakenAt:   snap.Header.TakenAt,
		ServerID:  snap.Header.ServerID,
		Companies: len(snap.Companies),
		Users:     len(snap.World.Users),
		Deeds:     len(snap.World.Deeds),
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Sync waits until every request queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.sendMu.RLock()
	if s.closed {
		s.sendMu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqSync, done: done}:
		s.sendMu.RUnlock()
	case <-ctx.Done():
		s.sendMu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertCompany, _ := s.db.Prepare(`INSERT INTO companies(name,ceo,legal_person,account,currency,creator,created_at,updated_at)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET ceo=excluded.ceo, legal_person=excluded.legal_person,
			account=excluded.account, currency=excluded.currency, updated_at=excluded.updated_at`)
	clearMembers, _ := s.db.Prepare(`DELETE FROM company_members WHERE company=?`)
	insertMember, _ := s.db.Prepare(`INSERT OR REPLACE INTO company_members(company,user_id,role) VALUES(?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(id,seq,time,company,action,actor,target,detail) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,taken_at,server_id,companies,users,deeds) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertCompany, clearMembers, insertMember, insertAudit, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var auditSeq int64
	_ = s.db.QueryRow(`SELECT COALESCE(MAX(seq),0) FROM audits`).Scan(&auditSeq)

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrors.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErrors.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	tick := time.NewTicker(commitMaxWait)
	defer tick.Stop()

	for {
		var r req
		select {
		case <-tick.C:
			flushIfNeeded()
			continue
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		}
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqCompany:
			if err := writeCompany(tx, upsertCompany, clearMembers, insertMember, r.company); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqAudit:
			if insertAudit == nil {
				continue
			}
			auditSeq++
			a := r.audit
			if _, err := tx.Stmt(insertAudit).Exec(
				uuid.NewString(),
				auditSeq,
				a.Time.UTC().Format(time.RFC3339Nano),
				a.Company,
				a.Action,
				string(a.Actor),
				string(a.Target),
				a.Detail,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot == nil {
				continue
			}
			if _, err := tx.Stmt(insertSnapshot).Exec(
				sn.Path,
				sn.TakenAt.UTC().Format(time.RFC3339Nano),
				sn.ServerID,
				sn.Companies,
				sn.Users,
				sn.Deeds,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}
}

func writeCompany(tx *sql.Tx, upsert, clear, member *sql.Stmt, r companies.Record) error {
	if upsert == nil || clear == nil || member == nil {
		return fmt.Errorf("statements not prepared")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Stmt(upsert).Exec(
		r.Name,
		string(r.CEO),
		string(r.LegalPerson),
		string(r.Account),
		string(r.Currency),
		string(r.Creator),
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		now,
	); err != nil {
		return err
	}
	if _, err := tx.Stmt(clear).Exec(r.Name); err != nil {
		return err
	}
	rows := make([][2]string, 0, len(r.Members)+len(r.Invites))
	for _, u := range r.Members {
		rows = append(rows, [2]string{string(u), roleMember})
	}
	for _, u := range r.Invites {
		rows = append(rows, [2]string{string(u), roleInvite})
	}
	for _, row := range rows {
		if _, err := tx.Stmt(member).Exec(r.Name, row[0], row[1]); err != nil {
			return err
		}
	}
	return nil
}

const (
	roleMember = "member"
	roleInvite = "invite"
)

// LoadCompanies reads every stored company record in creation order.
func (s *SQLiteIndex) LoadCompanies(ctx context.Context) ([]companies.Record, error) {
	return LoadCompanies(ctx, s.db)
}

func LoadCompanies(ctx context.Context, db *sql.DB) ([]companies.Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT name,ceo,legal_person,account,currency,creator,created_at FROM companies ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	var out []companies.Record
	index := map[string]int{}
	for rows.Next() {
		var (
			r                                     companies.Record
			ceo, lp, acc, cur, creator, createdAt string
		)
		if err := rows.Scan(&r.Name, &ceo, &lp, &acc, &cur, &creator, &createdAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		r.CEO = host.UserID(ceo)
		r.LegalPerson = host.UserID(lp)
		r.Account = host.AccountID(acc)
		r.Currency = host.CurrencyID(cur)
		r.Creator = host.UserID(creator)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		index[r.Name] = len(out)
		out = append(out, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	mrows, err := db.QueryContext(ctx, `SELECT company,user_id,role FROM company_members ORDER BY company, user_id`)
	if err != nil {
		return nil, err
	}
	defer mrows.Close()
	for mrows.Next() {
		var company, user, role string
		if err := mrows.Scan(&company, &user, &role); err != nil {
			return nil, err
		}
		i, ok := index[company]
		if !ok {
			continue
		}
		switch role {
		case roleMember:
			out[i].Members = append(out[i].Members, host.UserID(user))
		case roleInvite:
			out[i].Invites = append(out[i].Invites, host.UserID(user))
		}
	}
	return out, mrows.Err()
}

// AuditRow is one indexed audit entry.
type AuditRow struct {
	Seq     int64
	Time    string
	Company string
	Action  string
	Actor   string
	Target  string
	Detail  string
}

// Audits returns the newest limit entries, oldest first. A non-empty company
// filters by company name.
func Audits(ctx context.Context, db *sql.DB, company string, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT seq,time,company,action,COALESCE(actor,''),COALESCE(target,''),COALESCE(detail,'') FROM audits`
	args := []any{}
	if company != "" {
		q += ` WHERE company = ? COLLATE NOCASE`
		args = append(args, company)
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditRow
	for rows.Next() {
		var r AuditRow
		if err := rows.Scan(&r.Seq, &r.Time, &r.Company, &r.Action, &r.Actor, &r.Target, &r.Detail); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteIndex) Audits(ctx context.Context, company string, limit int) ([]AuditRow, error) {
	return Audits(ctx, s.db, company, limit)
}

// OpenReadOnly opens an index for inspection without the writer.
func OpenReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.Exec("PRAGMA query_only=ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SnapshotRow is one recorded snapshot.
type SnapshotRow struct {
	Path      string
	TakenAt   string
	ServerID  string
	Companies int
	Users     int
	Deeds     int
}

func Snapshots(ctx context.Context, db *sql.DB) ([]SnapshotRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT path,taken_at,server_id,companies,users,deeds FROM snapshots ORDER BY taken_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.Path, &r.TakenAt, &r.ServerID, &r.Companies, &r.Users, &r.Deeds); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
