package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"companies.ai/internal/sim/companies"
)

// JSONLZstdWriter appends JSON lines to one zstd file per hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.w == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// A reopened hour gets a second zstd frame; readers decode concatenated frames.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var errs []error
	if w.w != nil {
		errs = append(errs, w.w.Flush())
	}
	if w.enc != nil {
		errs = append(errs, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		errs = append(errs, w.f.Close())
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return errors.Join(errs...)
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// AuditRecord is one line of the audit log.
type AuditRecord struct {
	Time    time.Time `json:"time"`
	Company string    `json:"company"`
	Action  string    `json:"action"`
	Actor   string    `json:"actor,omitempty"`
	Target  string    `json:"target,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

func recordFromEntry(e companies.AuditEntry) AuditRecord {
	return AuditRecord{
		Time:    e.Time,
		Company: e.Company,
		Action:  e.Action,
		Actor:   string(e.Actor),
		Target:  string(e.Target),
		Detail:  e.Detail,
	}
}

// AuditLogger writes company audit entries as compressed JSONL.
type AuditLogger struct {
	w   *JSONLZstdWriter
	log zerolog.Logger
}

var _ companies.AuditSink = (*AuditLogger)(nil)

func NewAuditLogger(dataDir string, log zerolog.Logger) *AuditLogger {
	return &AuditLogger{
		w:   NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit"),
		log: log,
	}
}

// WriteAudit never fails the caller; write errors are logged.
func (l *AuditLogger) WriteAudit(e companies.AuditEntry) {
	if err := l.w.Write(recordFromEntry(e)); err != nil {
		l.log.Error().Err(err).Str("company", e.Company).Str("action", e.Action).Msg("audit log write")
	}
}

func (l *AuditLogger) Close() error { return l.w.Close() }

// ReadAudit decodes every audit file under dataDir in time order. A non-empty
// company filters by company name.
func ReadAudit(dataDir, company string) ([]AuditRecord, error) {
	files, err := filepath.Glob(filepath.Join(dataDir, "audit", "audit-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var out []AuditRecord
	for _, path := range files {
		recs, err := readAuditFile(path)
		if err != nil {
			return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		for _, r := range recs {
			if company != "" && !strings.EqualFold(r.Company, company) {
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func readAuditFile(path string) ([]AuditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []AuditRecord
	jd := json.NewDecoder(dec)
	for {
		var r AuditRecord
		if err := jd.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, r)
	}
}
