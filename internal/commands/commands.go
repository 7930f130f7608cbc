package commands

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"companies.ai/internal/protocol"
	"companies.ai/internal/sim/companies"
	"companies.ai/internal/sim/host"
	"companies.ai/internal/sim/tuning"
)

type Request struct {
	User    host.UserID
	Admin   bool
	Command string
	Args    []string
}

type Reply struct {
	OK      bool
	Code    string
	Message string
}

func ok(format string, args ...any) Reply {
	return Reply{OK: true, Message: fmt.Sprintf(format, args...)}
}

func fail(code, msg string) Reply {
	return Reply{Code: code, Message: msg}
}

// failErr maps an engine error onto a wire code.
func failErr(err error) Reply {
	return Reply{Code: CodeFor(err), Message: err.Error()}
}

// CodeFor returns the protocol error code for an engine error.
func CodeFor(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, companies.ErrStateChanged) {
		return protocol.ErrStale
	}
	switch companies.KindOf(err) {
	case companies.KindNotAuthorized:
		return protocol.ErrNoPermission
	case companies.KindInvalidState:
		return protocol.ErrInvalidTarget
	case companies.KindConflict:
		return protocol.ErrConflict
	case companies.KindValidation:
		return protocol.ErrBadRequest
	case companies.KindNotFound:
		return protocol.ErrNotFound
	default:
		return protocol.ErrInternal
	}
}

type pendingCreate struct {
	name     string
	proposal companies.Proposal
}

type Dispatcher struct {
	e   *companies.Engine
	h   host.Host
	sw  *tuning.Switches
	log zerolog.Logger

	mu      sync.Mutex
	pending map[host.UserID]pendingCreate
}

func New(e *companies.Engine, h host.Host, sw *tuning.Switches, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		e:       e,
		h:       h,
		sw:      sw,
		log:     log,
		pending: map[host.UserID]pendingCreate{},
	}
}

var adminOnly = map[string]bool{
	"configure": true,
	"force":     true,
	"list":      true,
	"resolve":   true,
}

// Handle runs one command for req.User.
func (d *Dispatcher) Handle(req Request) Reply {
	cmd := strings.ToLower(strings.TrimSpace(req.Command))
	if adminOnly[cmd] && !req.Admin {
		return fail(protocol.ErrNoPermission, "You are not authorized to use this command.")
	}
	var r Reply
	switch cmd {
	case "status":
		r = d.status(req)
	case "create":
		r = d.create(req)
	case "confirm":
		r = d.confirm(req)
	case "invite":
		r = d.invite(req)
	case "uninvite":
		r = d.uninvite(req)
	case "reject":
		r = d.reject(req)
	case "invites":
		r = ok("%s", d.e.InvitesText(req.User))
	case "fire":
		r = d.fire(req)
	case "join":
		r = d.join(req)
	case "leave":
		r = d.leave(req)
	case "citizenship":
		r = d.citizenship(req)
	case "hq":
		r = d.hq(req)
	case "configure":
		r = d.configure(req)
	case "force":
		r = d.force(req)
	case "list":
		r = ok("%s", d.e.List())
	case "resolve":
		r = d.resolve(req)
	default:
		return fail(protocol.ErrUnknownCommand, fmt.Sprintf("Unknown command '%s'", req.Command))
	}
	d.log.Debug().Str("user_id", string(req.User)).Str("command", cmd).Bool("ok", r.OK).Str("code", r.Code).Msg("command handled")
	return r
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func (d *Dispatcher) userByName(name string) (host.User, *Reply) {
	if name == "" {
		r := fail(protocol.ErrBadRequest, "You must specify a user.")
		return host.User{}, &r
	}
	u, found := d.h.UserByName(name)
	if !found {
		r := fail(protocol.ErrNotFound, fmt.Sprintf("No user named '%s'", name))
		return host.User{}, &r
	}
	return u, nil
}

func (d *Dispatcher) settlementByName(name string) (host.Settlement, *Reply) {
	if name == "" {
		r := fail(protocol.ErrBadRequest, "You must specify a valid settlement.")
		return host.Settlement{}, &r
	}
	for _, s := range d.h.Settlements() {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	r := fail(protocol.ErrNotFound, fmt.Sprintf("No settlement named '%s'", name))
	return host.Settlement{}, &r
}

func (d *Dispatcher) status(req Request) Reply {
	if name := joinArgs(req.Args); name != "" {
		s, err := d.e.Summary(name)
		if err != nil {
			return failErr(err)
		}
		return ok("%s", s)
	}
	var b strings.Builder
	for _, key := range d.sw.Keys() {
		v, _ := d.sw.Lookup(key)
		state := "disabled"
		if v {
			state = "enabled"
		}
		fmt.Fprintf(&b, "%s are %s\n", key, state)
	}
	if c := d.e.EmployerOf(req.User); c != nil {
		if s, err := d.e.Summary(c.Name()); err == nil {
			b.WriteString("\n" + s)
		}
	}
	return ok("%s", strings.TrimSuffix(b.String(), "\n"))
}

func (d *Dispatcher) create(req Request) Reply {
	name := joinArgs(req.Args)
	p, err := d.e.DryRun(req.User, name)
	if err != nil {
		return failErr(err)
	}
	d.mu.Lock()
	d.pending[req.User] = pendingCreate{name: name, proposal: p}
	d.mu.Unlock()
	return ok("%s\nOnce founded, a company cannot be dissolved and exists permanently.\nSend 'confirm' to proceed.", d.e.Describe(p))
}

func (d *Dispatcher) confirm(req Request) Reply {
	d.mu.Lock()
	pc, found := d.pending[req.User]
	delete(d.pending, req.User)
	d.mu.Unlock()
	if !found {
		return fail(protocol.ErrBadRequest, "You have no pending company creation to confirm.")
	}
	c, err := d.e.Commit(req.User, pc.name, pc.proposal)
	if err != nil {
		return failErr(err)
	}
	return ok("You have founded %s.", c.Name())
}

func (d *Dispatcher) employer(req Request, missing string) (*companies.Company, *Reply) {
	c := d.e.EmployerOf(req.User)
	if c == nil {
		r := fail(protocol.ErrNoPermission, missing)
		return nil, &r
	}
	return c, nil
}

func (d *Dispatcher) invite(req Request) Reply {
	c, r := d.employer(req, "Couldn't send company invite as you are not a CEO of any company")
	if r != nil {
		return *r
	}
	u, r := d.userByName(joinArgs(req.Args))
	if r != nil {
		return *r
	}
	if err := d.e.Invite(c.Name(), req.User, u.ID); err != nil {
		return failErr(err)
	}
	return ok("%s has been invited to join %s.", u.Name, c.Name())
}

func (d *Dispatcher) uninvite(req Request) Reply {
	c, r := d.employer(req, "Couldn't withdraw company invite as you are not a CEO of any company")
	if r != nil {
		return *r
	}
	u, r := d.userByName(joinArgs(req.Args))
	if r != nil {
		return *r
	}
	if err := d.e.Uninvite(c.Name(), req.User, u.ID); err != nil {
		return failErr(err)
	}
	return ok("%s is no longer invited to join %s.", u.Name, c.Name())
}

func (d *Dispatcher) reject(req Request) Reply {
	name := joinArgs(req.Args)
	if err := d.e.Reject(name, req.User); err != nil {
		return failErr(err)
	}
	return ok("You rejected the invitation to %s", d.e.Company(name).Name())
}

func (d *Dispatcher) fire(req Request) Reply {
	c, r := d.employer(req, "Couldn't fire employee as you are not a CEO of any company")
	if r != nil {
		return *r
	}
	u, r := d.userByName(joinArgs(req.Args))
	if r != nil {
		return *r
	}
	if err := d.e.Fire(c.Name(), req.User, u.ID); err != nil {
		return failErr(err)
	}
	return ok("%s has been fired from %s.", u.Name, c.Name())
}

func (d *Dispatcher) join(req Request) Reply {
	name := joinArgs(req.Args)
	if err := d.e.Join(name, req.User); err != nil {
		return failErr(err)
	}
	return ok("You have joined %s.", d.e.Company(name).Name())
}

func (d *Dispatcher) leave(req Request) Reply {
	c, r := d.employer(req, "Couldn't resign from your company as you're not currently employed")
	if r != nil {
		return *r
	}
	if err := d.e.Leave(req.User); err != nil {
		return failErr(err)
	}
	return ok("You have left %s.", c.Name())
}

func (d *Dispatcher) citizenship(req Request) Reply {
	c, r := d.employer(req, "You are not currently employed by a company.")
	if r != nil {
		return *r
	}
	verb, rest := "", []string(nil)
	if len(req.Args) > 0 {
		verb, rest = strings.ToLower(req.Args[0]), req.Args[1:]
	}
	switch verb {
	case "":
		s, err := d.e.CitizenshipStatus(c.Name())
		if err != nil {
			return failErr(err)
		}
		return ok("%s", s)
	case "apply", "join":
		s, r := d.settlementByName(joinArgs(rest))
		if r != nil {
			return *r
		}
		var err error
		if verb == "apply" {
			err = d.e.ApplyToSettlement(c.Name(), req.User, s.ID)
		} else {
			err = d.e.JoinSettlement(c.Name(), req.User, s.ID)
		}
		if err != nil {
			return failErr(err)
		}
		return d.citizenshipAfter(c)
	case "leave":
		if err := d.e.LeaveSettlement(c.Name(), req.User); err != nil {
			return failErr(err)
		}
		return d.citizenshipAfter(c)
	case "refresh":
		if err := d.e.UpdateCitizenships(c.Name()); err != nil {
			return failErr(err)
		}
		return ok("Citizenships refreshed.")
	case "checkdesync":
		rep, err := d.e.CheckCitizenshipDesync(c.Name())
		if err != nil {
			return failErr(err)
		}
		if rep.Message == companies.NoDesync {
			return ok("No citizenship desync detected.")
		}
		return ok("%s", rep.Message)
	default:
		return fail(protocol.ErrBadRequest, "Valid verbs are 'apply', 'join', 'leave', 'refresh', 'checkdesync', or blank to view citizenship status.")
	}
}

func (d *Dispatcher) citizenshipAfter(c *companies.Company) Reply {
	s, err := d.e.CitizenshipStatus(c.Name())
	if err != nil {
		return failErr(err)
	}
	return ok("%s", s)
}

func (d *Dispatcher) hq(req Request) Reply {
	c, r := d.employer(req, "You are not currently employed by a company.")
	if r != nil {
		return *r
	}
	verb := ""
	if len(req.Args) > 0 {
		verb = strings.ToLower(req.Args[0])
	}
	switch verb {
	case "":
		s, err := d.e.HQStatus(c.Name())
		if err != nil {
			return failErr(err)
		}
		return ok("%s", s)
	case "checkhqdesync":
		rep, err := d.e.CheckHQDesync(c.Name())
		if err != nil {
			return failErr(err)
		}
		if rep.Message == companies.NoDesync {
			return ok("No HQ desync detected.")
		}
		return ok("%s", rep.Message)
	case "refreshsize":
		size, err := d.e.RefreshHQSize(c.Name())
		if err != nil {
			return failErr(err)
		}
		return ok("HQ size refreshed (the HQ of %s should have %d base max plots)", c.Name(), size)
	default:
		return fail(protocol.ErrBadRequest, "Valid verbs are 'checkhqdesync', 'refreshsize', or blank to view HQ status.")
	}
}

func (d *Dispatcher) configure(req Request) Reply {
	if len(req.Args) != 2 {
		return fail(protocol.ErrBadRequest, "Valid settings are: "+strings.Join(d.sw.Keys(), ", "))
	}
	key := req.Args[0]
	if _, err := d.sw.Set(key, req.Args[1]); err != nil {
		if _, lookupErr := d.sw.Lookup(key); lookupErr != nil {
			return fail(protocol.ErrBadRequest, "Valid settings are: "+strings.Join(d.sw.Keys(), ", "))
		}
		return fail(protocol.ErrBadRequest, err.Error())
	}
	v, _ := d.sw.Lookup(key)
	state := "disabled"
	if v {
		state = "enabled"
	}
	d.log.Info().Str("user_id", string(req.User)).Str("setting", key).Bool("value", v).Msg("setting changed")
	return ok("'%s' is now set to %s", key, state)
}

// force runs an admin override: force <verb> <company> <user>. The company
// name may contain spaces; the user is the last argument.
func (d *Dispatcher) force(req Request) Reply {
	const usage = "Usage: force <employ|fire|promote|demote|invite|uninvite> <company> <user>"
	if len(req.Args) < 3 {
		return fail(protocol.ErrBadRequest, usage)
	}
	verb := strings.ToLower(req.Args[0])
	switch verb {
	case "invite", "uninvite", "employ", "fire", "promote", "demote":
	default:
		return fail(protocol.ErrBadRequest, "Valid verbs are 'employ', 'fire', 'demote','promote', 'invite' or 'uninvite'.")
	}
	company := joinArgs(req.Args[1 : len(req.Args)-1])
	u, r := d.userByName(req.Args[len(req.Args)-1])
	if r != nil {
		return *r
	}
	c := d.e.Company(company)
	if c == nil {
		return fail(protocol.ErrNotFound, fmt.Sprintf("No company named '%s'", company))
	}
	var err error
	switch verb {
	case "invite":
		err = d.e.ForceInvite(c.Name(), u.ID)
		if err == nil {
			return ok("%s was invited to join %s.", u.Name, c.Name())
		}
		return fail(CodeFor(err), fmt.Sprintf("Failed to invite %s to %s:\n%s", u.Name, c.Name(), err))
	case "uninvite":
		err = d.e.ForceUninvite(c.Name(), u.ID)
		if err == nil {
			return ok("%s was uninvited to join %s.", u.Name, c.Name())
		}
		return fail(CodeFor(err), fmt.Sprintf("Failed to uninvite %s to %s:\n%s", u.Name, c.Name(), err))
	case "employ":
		err = d.e.ForceJoin(c.Name(), u.ID)
	case "fire":
		err = d.e.ForceLeave(c.Name(), u.ID)
	case "promote":
		if err = d.e.ForceJoin(c.Name(), u.ID); err == nil || errors.Is(err, companies.ErrAlreadyMember) {
			err = d.e.ChangeCEO(c.Name(), u.ID)
		}
	case "demote":
		if err = d.e.DemoteCEO(c.Name(), u.ID); err != nil {
			return fail(CodeFor(err), fmt.Sprintf("Please enter the current CEO of %s as user!", c.Name()))
		}
	}
	if err != nil {
		return failErr(err)
	}
	return ok("force %s %s on %s done.", verb, u.Name, c.Name())
}

// resolve evaluates a company alias resolver for the caller:
// resolve <user|alias> <resolver> [account id].
func (d *Dispatcher) resolve(req Request) Reply {
	if len(req.Args) < 2 {
		return fail(protocol.ErrBadRequest, "Usage: resolve <user|alias> <resolver> [account]")
	}
	var slot companies.Slot
	switch strings.ToLower(req.Args[0]) {
	case "user":
		slot = companies.SlotUser
	case "alias":
		slot = companies.SlotAlias
	default:
		return fail(protocol.ErrBadRequest, "Slot must be 'user' or 'alias'.")
	}
	res, err := companies.ParseResolver(req.Args[1])
	if err != nil {
		return failErr(err)
	}
	ctx := companies.ResolveContext{Citizen: req.User}
	if len(req.Args) > 2 {
		ctx.Account = host.AccountID(req.Args[2])
	}
	alias, err := d.e.Resolve(slot, res, ctx)
	if err != nil {
		return failErr(err)
	}
	concrete := companies.Remap(slot, res)
	if len(alias) == 0 {
		return ok("%s resolved to nobody", concrete)
	}
	names := make([]string, 0, len(alias))
	for _, id := range alias {
		if u, found := d.h.User(id); found {
			names = append(names, u.Name)
		} else {
			names = append(names, string(id))
		}
	}
	return ok("%s resolved to %s", concrete, strings.Join(names, ", "))
}
