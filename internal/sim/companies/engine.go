package companies

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"companies.ai/internal/sim/host"
	"companies.ai/internal/sim/sched"
	"companies.ai/internal/sim/tuning"
)

// Store persists company records. SaveCompany is called after every
// mutation with the company lock held.
type Store interface {
	SaveCompany(r Record) error
}

type AuditEntry struct {
	Time    time.Time
	Company string
	Action  string
	Actor   host.UserID
	Target  host.UserID
	Detail  string
}

type AuditSink interface {
	WriteAudit(e AuditEntry)
}

// AuditSinks fans an entry out to several sinks.
type AuditSinks []AuditSink

func (s AuditSinks) WriteAudit(e AuditEntry) {
	for _, x := range s {
		x.WriteAudit(e)
	}
}

type Deps struct {
	Host     host.Host
	Switches *tuning.Switches
	Sched    sched.Scheduler
	Log      zerolog.Logger
	Store    Store
	Audit    AuditSink
	Now      func() time.Time
}

// Engine owns every company and reacts to the host's actions and events.
type Engine struct {
	h     host.Host
	sw    *tuning.Switches
	sched sched.Scheduler
	log   zerolog.Logger
	store Store
	audit AuditSink
	now   func() time.Time

	reg *registry

	// Set while the engine itself rewrites account permissions.
	ignorePermissions atomic.Int32
}

var (
	_ host.Subscriber    = (*Engine)(nil)
	_ host.Interceptor   = (*Engine)(nil)
	_ host.Listener      = (*Engine)(nil)
	_ host.AuthOverrider = (*Engine)(nil)
)

func New(d Deps) (*Engine, error) {
	if d.Host == nil {
		return nil, fmt.Errorf("companies: host is required")
	}
	if d.Switches == nil {
		d.Switches = tuning.NewSwitches(tuning.Defaults())
	}
	if d.Sched == nil {
		d.Sched = sched.NewTimer(d.Log)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	e := &Engine{
		h:     d.Host,
		sw:    d.Switches,
		sched: d.Sched,
		log:   d.Log,
		store: d.Store,
		audit: d.Audit,
		now:   d.Now,
		reg:   newRegistry(),
	}
	d.Host.Subscribe(e)
	d.Host.AddInterceptor(e)
	d.Host.AddListener(e)
	d.Host.AddAuthOverrider(e)
	return e, nil
}

func (e *Engine) cfg() tuning.Tuning { return e.sw.Get() }

// Company returns the company with the given name, or nil.
func (e *Engine) Company(name string) *Company { return e.reg.get(name) }

func (e *Engine) Companies() []*Company { return e.reg.all() }

// EmployerOf returns the company u works for, or nil.
func (e *Engine) EmployerOf(u host.UserID) *Company { return e.reg.employerOf(u) }

func (e *Engine) FromLegalPerson(u host.UserID) *Company { return e.reg.fromLegalPerson(u) }

func (e *Engine) FromAccount(acc host.Account) *Company { return e.companyForAccount(acc) }

// companyForAccount returns the company that owns acc: its own account, or
// a shared account its delegate manages.
func (e *Engine) companyForAccount(acc host.Account) *Company {
	if c := e.reg.fromAccount(acc.ID); c != nil {
		return c
	}
	if acc.Kind == host.AccountPersonal || acc.Kind == host.AccountGovernment {
		return nil
	}
	for _, m := range acc.Managers {
		if c := e.reg.fromLegalPerson(m); c != nil {
			return c
		}
	}
	return nil
}

func (e *Engine) userName(u host.UserID) string {
	if u == "" {
		return "nobody"
	}
	if usr, ok := e.h.User(u); ok {
		return usr.Name
	}
	return string(u)
}

func (e *Engine) sendCompanyMessageLocked(c *Company, msg string) {
	e.notifyMembersLocked(c, "company", msg)
}

func (e *Engine) notifyMembersLocked(c *Company, category, msg string) {
	for _, u := range c.allEmployeesLocked() {
		e.h.Notify(u, category, msg)
	}
}

// persistLocked writes the company record. Failures are logged; the
// in-memory state stays authoritative.
func (e *Engine) persistLocked(c *Company) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveCompany(c.recordLocked()); err != nil {
		e.log.Error().Err(err).Str("company", c.name).Msg("persist company")
	}
}

func (e *Engine) auditLocked(c *Company, action string, actor, target host.UserID, detail string) {
	if e.audit == nil {
		return
	}
	e.audit.WriteAudit(AuditEntry{
		Time:    e.now().UTC(),
		Company: c.name,
		Action:  action,
		Actor:   actor,
		Target:  target,
		Detail:  detail,
	})
}

func (e *Engine) internal(c *Company, op string, err error) *Error {
	name := ""
	if c != nil {
		name = c.name
	}
	e.log.Error().Err(err).Str("company", name).Str("op", op).Msg("host collaborator failed")
	return fail(ErrInternal, "Couldn't %s due to an internal error", op)
}
