package companies

import (
	"errors"
	"fmt"

	"companies.ai/internal/sim/host"
)

func (e *Engine) legalPersonCitizenshipLocked(c *Company) host.SettlementID {
	if lp, ok := e.h.User(c.legalPerson); ok {
		return lp.DirectCitizenship
	}
	return ""
}

func (e *Engine) settlementName(id host.SettlementID) string {
	if id == "" {
		return "no settlement"
	}
	if s, ok := e.h.Settlement(id); ok {
		return s.Name
	}
	return string(id)
}

// setCitizenOfLocked moves the delegate to settlement s (empty leaves).
func (e *Engine) setCitizenOfLocked(c *Company, s host.SettlementID) error {
	cur := e.legalPersonCitizenshipLocked(c)
	if cur == s {
		return nil
	}
	if cur != "" {
		if err := e.h.Leave(cur, c.legalPerson); err != nil {
			return err
		}
	}
	if s != "" {
		return e.h.AddToRoster(s, c.legalPerson, true)
	}
	return nil
}

// handleCitizenshipChanged reacts to the delegate's settlement changing and
// pushes the new citizenship down to every member.
func (e *Engine) handleCitizenshipChanged(ev host.CitizenshipChanged) {
	c := e.reg.fromLegalPerson(ev.User)
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case ev.Before != "" && ev.After != "":
		e.sendCompanyMessageLocked(c, fmt.Sprintf("%s has left %s and joined %s.", c.name, e.settlementName(ev.Before), e.settlementName(ev.After)))
	case ev.Before != "":
		e.sendCompanyMessageLocked(c, fmt.Sprintf("%s has left %s.", c.name, e.settlementName(ev.Before)))
	case ev.After != "":
		e.sendCompanyMessageLocked(c, fmt.Sprintf("%s has joined %s.", c.name, e.settlementName(ev.After)))
	}
	if err := e.updateCitizenshipsLocked(c); err != nil {
		e.log.Error().Err(err).Str("company", c.name).Msg("update member citizenships")
	}
	e.auditLocked(c, "citizenship", "", "", string(ev.After))
}

// UpdateCitizenships makes every member inherit the company's settlement.
func (e *Engine) UpdateCitizenships(company string) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := e.updateCitizenshipsLocked(c); err != nil {
		return e.internal(c, "refresh citizenships", err)
	}
	return nil
}

func (e *Engine) updateCitizenshipsLocked(c *Company) error {
	if !e.cfg().CitizenshipInheritanceEnabled {
		return nil
	}
	target := e.legalPersonCitizenshipLocked(c)
	var errs []error
	for _, id := range c.allEmployeesLocked() {
		u, ok := e.h.User(id)
		if !ok {
			continue
		}
		errs = append(errs, e.updateCitizenship(u, target))
	}
	return errors.Join(errs...)
}

func (e *Engine) updateCitizenship(u host.User, target host.SettlementID) error {
	switch {
	case target != "" && u.DirectCitizenship == "":
		return e.h.AddToRoster(target, u.ID, true)
	case target != "" && u.DirectCitizenship != target:
		if err := e.h.Leave(u.DirectCitizenship, u.ID); err != nil {
			return err
		}
		return e.h.AddToRoster(target, u.ID, true)
	case target == "" && u.DirectCitizenship != "":
		return e.h.Leave(u.DirectCitizenship, u.ID)
	}
	return nil
}

// CheckCitizenshipDesync corrects the delegate's cached settlement from the
// rosters, which are authoritative.
func (e *Engine) CheckCitizenshipDesync(company string) (Report, error) {
	c, err := e.lookup(company)
	if err != nil {
		return Report{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.checkCitizenshipDesyncLocked(c), nil
}

func (e *Engine) checkCitizenshipDesyncLocked(c *Company) Report {
	cached := e.legalPersonCitizenshipLocked(c)
	var actual host.SettlementID
	if cached != "" && e.h.HasCitizen(cached, c.legalPerson) {
		actual = cached
	} else {
		for _, s := range e.h.Settlements() {
			if e.h.HasCitizen(s.ID, c.legalPerson) {
				actual = s.ID
				break
			}
		}
	}
	if actual == cached {
		return Report{Message: NoDesync}
	}
	var msg string
	if actual == "" {
		msg = fmt.Sprintf("corrected: %s was a citizen of %s but not on the roster, removing...", c.name, e.settlementName(cached))
	} else {
		msg = fmt.Sprintf("corrected: %s was on the roster for %s but not a citizen of, updating...", c.name, e.settlementName(actual))
	}
	if err := e.h.SetDirectCitizenship(c.legalPerson, actual); err != nil {
		e.log.Error().Err(err).Str("company", c.name).Msg("fix citizenship desync")
		return Report{Message: "Couldn't correct citizenship desync due to an internal error"}
	}
	e.log.Info().Str("company", c.name).Str("settlement_id", string(actual)).Msg("citizenship desync corrected")
	return Report{Corrected: true, Message: msg}
}

func (e *Engine) requireCEO(company string, invoker host.UserID, what string) (*Company, error) {
	c, err := e.lookup(company)
	if err != nil {
		return nil, err
	}
	if c.CEO() != invoker {
		return nil, fail(ErrNotAuthorized, "Couldn't %s as you are not the CEO of %s", what, c.name)
	}
	return c, nil
}

func (e *Engine) checkDelegateCanJoin(c *Company, s host.Settlement) error {
	if err := e.h.CheckCanJoin(s.ID, c.legalPerson); err != nil {
		return fail(ErrNotAuthorized, "Couldn't join %s as %s", s.Name, err.Error())
	}
	return nil
}

// ApplyToSettlement enrolls the company directly when the settlement has no
// approver, otherwise files an application and mails the approver.
func (e *Engine) ApplyToSettlement(company string, invoker host.UserID, settlement host.SettlementID) error {
	s, ok := e.h.Settlement(settlement)
	if !ok {
		return fail(ErrNotFound, "No settlement %s", settlement)
	}
	c, err := e.requireCEO(company, invoker, "apply to join "+s.Name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !e.h.CanApply(s.ID, c.legalPerson) {
		return fail(ErrAlreadyInvited, "Couldn't apply to join %s as %s has already applied or been invited, or %s is not currently accepting new applicants.", s.Name, c.name, s.Name)
	}
	if err := e.checkDelegateCanJoin(c, s); err != nil {
		return err
	}
	if s.Approver == "" {
		if err := e.setCitizenOfLocked(c, s.ID); err != nil {
			return e.internal(c, "join "+s.Name, err)
		}
		return nil
	}
	if err := e.h.Apply(s.ID, c.legalPerson); err != nil {
		return e.internal(c, "apply to "+s.Name, err)
	}
	e.sendCompanyMessageLocked(c, c.name+" has applied to join "+s.Name+".")
	e.h.Notify(s.Approver, "mail", c.name+" has applied to be a Citizen of "+s.Name+". You may approve or reject this application.")
	e.auditLocked(c, "settlement_apply", invoker, "", string(s.ID))
	return nil
}

// JoinSettlement accepts a pending settlement invitation.
func (e *Engine) JoinSettlement(company string, invoker host.UserID, settlement host.SettlementID) error {
	s, ok := e.h.Settlement(settlement)
	if !ok {
		return fail(ErrNotFound, "No settlement %s", settlement)
	}
	c, err := e.requireCEO(company, invoker, "try to join "+s.Name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := e.checkDelegateCanJoin(c, s); err != nil {
		return err
	}
	if s.Approver != "" && !e.h.CanAcceptInvitation(s.ID, c.legalPerson) {
		return fail(ErrNotInvited, "Couldn't try to join %s as %s has not been invited.", s.Name, c.name)
	}
	if err := e.setCitizenOfLocked(c, s.ID); err != nil {
		return e.internal(c, "join "+s.Name, err)
	}
	e.auditLocked(c, "settlement_join", invoker, "", string(s.ID))
	return nil
}

func (e *Engine) LeaveSettlement(company string, invoker host.UserID) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := e.legalPersonCitizenshipLocked(c)
	if cur == "" {
		return fail(ErrNotFound, "%s is not currently part of any settlement.", c.name)
	}
	sn := e.settlementName(cur)
	if invoker != c.ceo {
		return fail(ErrNotAuthorized, "Couldn't leave %s from %s as you are not the CEO of %s", sn, c.name, c.name)
	}
	if !e.h.CanLeave(cur, c.legalPerson) {
		return fail(ErrNotEmployed, "Couldn't leave %s as %s is not currently a citizen.", sn, c.name)
	}
	if err := e.h.CheckCanLeave(cur, c.legalPerson); err != nil {
		return fail(ErrNotAuthorized, "Couldn't leave %s as %s", sn, err.Error())
	}
	if err := e.h.Leave(cur, c.legalPerson); err != nil {
		return e.internal(c, "leave "+sn, err)
	}
	e.auditLocked(c, "settlement_leave", invoker, "", string(cur))
	return nil
}
