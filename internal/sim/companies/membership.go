package companies

import (
	"companies.ai/internal/sim/host"
)

func (e *Engine) lookup(name string) (*Company, error) {
	c := e.reg.get(name)
	if c == nil {
		return nil, fail(ErrNotFound, "No company named '%s'", name)
	}
	return c, nil
}

func (e *Engine) Invite(company string, invoker, target host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tn := e.userName(target)
	if invoker != c.ceo {
		return fail(ErrNotAuthorized, "Couldn't invite %s to %s as you are not the CEO of %s", tn, c.name, c.name)
	}
	if c.isInvitedLocked(target) {
		return fail(ErrAlreadyInvited, "Couldn't invite %s to %s as they are already invited", tn, c.name)
	}
	if c.isEmployeeLocked(target) {
		return fail(ErrAlreadyMember, "Couldn't invite %s to %s as they are already an employee", tn, c.name)
	}
	if e.reg.fromLegalPerson(target) != nil {
		return fail(ErrInvalidTarget, "Couldn't invite %s to %s as they are a company legal person", tn, c.name)
	}
	c.invites[target] = struct{}{}
	e.h.Notify(target, "mail", "You have been invited to join "+c.name+". Type '/company join "+c.name+"' to accept.")
	e.sendCompanyMessageLocked(c, e.userName(invoker)+" has invited "+tn+" to join the company.")
	e.persistLocked(c)
	e.auditLocked(c, "invite", invoker, target, "")
	return nil
}

func (e *Engine) Uninvite(company string, invoker, target host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tn := e.userName(target)
	if invoker != c.ceo {
		return fail(ErrNotAuthorized, "Couldn't withdraw invite of %s to %s as you are not the CEO of %s", tn, c.name, c.name)
	}
	if !c.isInvitedLocked(target) {
		return fail(ErrNotInvited, "Couldn't withdraw invite of %s to %s as they have not been invited", tn, c.name)
	}
	delete(c.invites, target)
	e.sendCompanyMessageLocked(c, e.userName(invoker)+" has withdrawn the invitation for "+tn+" to join the company.")
	e.persistLocked(c)
	e.auditLocked(c, "uninvite", invoker, target, "")
	return nil
}

// Reject lets an invitee decline.
func (e *Engine) Reject(company string, user host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isInvitedLocked(user) {
		return fail(ErrNotInvited, "Couldn't reject invite to %s as you have not been invited", c.name)
	}
	delete(c.invites, user)
	e.sendCompanyMessageLocked(c, e.userName(user)+" has rejected their invitation to join the company.")
	e.persistLocked(c)
	e.auditLocked(c, "reject", user, user, "")
	return nil
}

// InvitesFor lists the companies that have invited u.
func (e *Engine) InvitesFor(u host.UserID) []string {
	var out []string
	for _, c := range e.reg.all() {
		if c.IsInvited(u) {
			out = append(out, c.name)
		}
	}
	return out
}

func (e *Engine) checkJoinLocked(c *Company, user host.UserID) error {
	if c.isEmployeeLocked(user) {
		return fail(ErrAlreadyMember, "Couldn't join %s as you are already an employee", c.name)
	}
	if other := e.reg.employerOf(user); other != nil && other != c {
		return fail(ErrAlreadyEmployed, "Couldn't join %s as you are already employed by %s.\nYou must leave %s before joining %s.", c.name, other.name, other.name, c.name)
	}
	if !c.isInvitedLocked(user) {
		return fail(ErrNotInvited, "Couldn't join %s as you have not been invited.", c.name)
	}
	if e.cfg().PropertyLimitsEnabled {
		if u, ok := e.h.User(user); ok && u.HomesteadDeed != "" {
			dn := string(u.HomesteadDeed)
			if d, ok := e.h.Deed(u.HomesteadDeed); ok {
				dn = d.Name
			}
			return fail(ErrHasConflictingProperty, "Couldn't join %s as you have a homestead deed.\nYou must remove %s before joining %s.", c.name, dn, c.name)
		}
	}
	return nil
}

func (e *Engine) Join(company string, user host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	err = e.checkJoinLocked(c, user)
	lp := c.legalPerson
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if r := e.h.Perform(host.CitizenJoinCompany{Citizen: user, LegalPerson: lp}); !r.Success {
		return fail(ErrNotAuthorized, "Couldn't join %s: %s", c.name, r.Message)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := e.checkJoinLocked(c, user); err != nil {
		return err
	}
	if !e.reg.claim(user, c) {
		return fail(ErrAlreadyEmployed, "Couldn't join %s as you are already employed elsewhere.", c.name)
	}
	delete(c.invites, user)
	c.employees[user] = struct{}{}
	e.onEmployeesChangedLocked(c)
	e.sendCompanyMessageLocked(c, e.userName(user)+" has joined the company.")
	e.auditLocked(c, "join", user, user, "")
	return nil
}

func (e *Engine) checkLeaveLocked(c *Company, user host.UserID, verb string) error {
	if !c.isEmployeeLocked(user) {
		return fail(ErrNotEmployed, "Couldn't %s %s as they are not an employee", verb, c.name)
	}
	if user == c.ceo {
		return fail(ErrIsController, "Couldn't %s %s as they are the CEO", verb, c.name)
	}
	return nil
}

func (e *Engine) Fire(company string, invoker, target host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if invoker != c.ceo {
		c.mu.Unlock()
		return fail(ErrNotAuthorized, "Couldn't fire %s from %s as you are not the CEO of %s", e.userName(target), c.name, c.name)
	}
	err = e.checkLeaveLocked(c, target, "fire "+e.userName(target)+" from")
	lp := c.legalPerson
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return e.removeEmployee(c, target, host.CitizenLeaveCompany{Citizen: target, LegalPerson: lp, Fired: true},
		e.userName(invoker)+" has fired "+e.userName(target)+" from the company.", "fire", invoker)
}

func (e *Engine) Leave(user host.UserID) error {
	c := e.reg.employerOf(user)
	if c == nil {
		return fail(ErrNotEmployed, "Couldn't resign as you are not an employee of any company")
	}
	c.mu.Lock()
	isCEO := c.ceo == user
	employed := c.isEmployeeLocked(user)
	lp := c.legalPerson
	c.mu.Unlock()
	if !employed {
		return fail(ErrNotEmployed, "Couldn't resign from %s as you are not an employee", c.name)
	}
	if isCEO {
		return fail(ErrIsController, "Couldn't resign from %s as you are the CEO", c.name)
	}
	return e.removeEmployee(c, user, host.CitizenLeaveCompany{Citizen: user, LegalPerson: lp},
		e.userName(user)+" has resigned from the company.", "leave", user)
}

func (e *Engine) removeEmployee(c *Company, user host.UserID, act host.CitizenLeaveCompany, msg, op string, actor host.UserID) error {
	if r := e.h.Perform(act); !r.Success {
		return fail(ErrNotAuthorized, "Couldn't remove %s from %s: %s", e.userName(user), c.name, r.Message)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := e.checkLeaveLocked(c, user, "remove "+e.userName(user)+" from"); err != nil {
		return err
	}
	e.sendCompanyMessageLocked(c, msg)
	delete(c.employees, user)
	e.reg.release(user, c)
	e.onEmployeesChangedLocked(c)
	e.auditLocked(c, op, actor, user, "")
	return nil
}

// ForceJoin employs user unconditionally, removing them from any previous
// employer first.
func (e *Engine) ForceJoin(company string, user host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	if e.reg.fromLegalPerson(user) != nil {
		return fail(ErrAlreadyEmployed, "%s is a company legal person", e.userName(user))
	}
	for attempt := 0; attempt < 3; attempt++ {
		if old := e.reg.employerOf(user); old != nil && old != c {
			if old.CEO() == user {
				return fail(ErrIsController, "Couldn't employ %s as they are the CEO of %s", e.userName(user), old.name)
			}
			e.forceLeave(old, user, "admin")
		}
		c.mu.Lock()
		if c.isEmployeeLocked(user) {
			c.mu.Unlock()
			return fail(ErrAlreadyMember, "%s is already an employee of %s", e.userName(user), c.name)
		}
		if !e.reg.claim(user, c) {
			// Another company grabbed the user between the two locks.
			c.mu.Unlock()
			continue
		}
		delete(c.invites, user)
		c.employees[user] = struct{}{}
		e.onEmployeesChangedLocked(c)
		e.sendCompanyMessageLocked(c, e.userName(user)+" has joined the company.")
		e.auditLocked(c, "force_join", "", user, "")
		c.mu.Unlock()
		return nil
	}
	return fail(ErrStateChanged, "Couldn't employ %s as their employment keeps changing", e.userName(user))
}

// ForceLeave ejects user without authorization checks. The CEO cannot be
// ejected.
func (e *Engine) ForceLeave(company string, user host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	err = e.checkLeaveLocked(c, user, "eject "+e.userName(user)+" from")
	c.mu.Unlock()
	if err != nil {
		return err
	}
	e.forceLeave(c, user, "admin")
	return nil
}

func (e *Engine) forceLeave(c *Company, user host.UserID, actor host.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if user == c.ceo {
		return
	}
	if _, ok := c.employees[user]; !ok {
		return
	}
	e.sendCompanyMessageLocked(c, e.userName(user)+" has been ejected from the company.")
	delete(c.employees, user)
	e.reg.release(user, c)
	e.onEmployeesChangedLocked(c)
	e.auditLocked(c, "force_leave", actor, user, "")
}

// ForceInvite and ForceUninvite skip the CEO check.
func (e *Engine) ForceInvite(company string, user host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ceo := c.ceo
	c.mu.Unlock()
	if ceo == "" {
		return fail(ErrInternal, "%s has no CEO", c.name)
	}
	return e.Invite(company, ceo, user)
}

func (e *Engine) ForceUninvite(company string, user host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ceo := c.ceo
	c.mu.Unlock()
	if ceo == "" {
		return fail(ErrInternal, "%s has no CEO", c.name)
	}
	return e.Uninvite(company, ceo, user)
}

// ChangeCEO makes user the controller. A user employed elsewhere is
// moved first; the previous CEO stays on as an ordinary member.
func (e *Engine) ChangeCEO(company string, user host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	if e.reg.fromLegalPerson(user) != nil {
		return fail(ErrInvalidTarget, "%s is a company legal person and can't be a CEO", e.userName(user))
	}
	if old := e.reg.employerOf(user); old != nil && old != c {
		if old.CEO() == user {
			return fail(ErrIsController, "%s is already the CEO of %s", e.userName(user), old.name)
		}
		e.forceLeave(old, user, "admin")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !e.reg.claim(user, c) {
		return fail(ErrStateChanged, "Couldn't promote %s as their employment changed", e.userName(user))
	}
	e.changeCEOLocked(c, user)
	e.auditLocked(c, "change_ceo", "", user, "")
	return nil
}

func (e *Engine) changeCEOLocked(c *Company, user host.UserID) {
	if prev := c.ceo; prev != "" && prev != user {
		c.employees[prev] = struct{}{}
	}
	delete(c.employees, user)
	delete(c.invites, user)
	c.ceo = user
	e.h.Broadcast("company", e.userName(user)+" is now the CEO of "+c.name+"!")
	e.log.Info().Str("company", c.name).Str("user_id", string(user)).Msg("ceo changed")
	e.onEmployeesChangedLocked(c)
}

// DemoteCEO clears the controller when user holds it. The company is left
// without a CEO until one is promoted.
func (e *Engine) DemoteCEO(company string, user host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ceo != user {
		return fail(ErrNotController, "%s is not the CEO of %s", e.userName(user), c.name)
	}
	c.ceo = ""
	c.employees[user] = struct{}{}
	e.sendCompanyMessageLocked(c, e.userName(user)+" is no longer the CEO of the company.")
	e.onEmployeesChangedLocked(c)
	e.auditLocked(c, "demote_ceo", "", user, "")
	return nil
}
