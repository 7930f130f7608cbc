package companies

import (
	"fmt"

	"companies.ai/internal/sim/host"
)

// Intercept runs before an action commits. It may block the action or
// attach follow-up work.
func (e *Engine) Intercept(a host.Action, r *host.PostResult) {
	switch act := a.(type) {
	case host.ReputationTransfer:
		e.interceptReputation(act, r)
	case host.TradeAction:
		e.interceptTrade(act)
	case host.StartHomestead:
		e.interceptStartHomestead(act, r)
	case host.PlaceOrPickUp:
		e.interceptPlaceOrPickUp(act, r)
	}
}

func (e *Engine) blockReputation(r *host.PostResult, sender host.UserID, msg string) {
	r.Fail(msg)
	e.h.Notify(sender, "reputation", msg)
}

func (e *Engine) interceptReputation(act host.ReputationTransfer, r *host.PostResult) {
	if act.Target != host.ReputationToUser {
		return
	}
	cfg := e.cfg()
	senderCompany := e.reg.employerOf(act.Sender)
	receiverCompany := e.reg.employerOf(act.Receiver)

	if cfg.DenyLegalPersonReputation && e.reg.fromLegalPerson(act.Receiver) != nil {
		e.blockReputation(r, act.Sender, e.userName(act.Receiver)+" is a company legal person and can't receive reputation.")
		return
	}
	if cfg.DenyMembersExternalReputation && receiverCompany != nil {
		e.blockReputation(r, act.Sender, "You can't give reputation to a member of a company.")
		return
	}
	if cfg.DenyMembersInternalReputation {
		if senderCompany != nil {
			if senderCompany.IsEmployee(act.Receiver) || senderCompany.IsInvited(act.Receiver) || senderCompany.LegalPerson() == act.Receiver {
				e.blockReputation(r, act.Sender, fmt.Sprintf("%s is (or invited to become) a member of %s and can't receive any reputation from you.", e.userName(act.Receiver), senderCompany.name))
				return
			}
		}
		if receiverCompany != nil && receiverCompany.IsInvited(act.Sender) {
			e.blockReputation(r, act.Sender, fmt.Sprintf("You are invited to become a member of %s and can't give reputation to anyone in your company.", receiverCompany.name))
			return
		}
	}

	if senderCompany == receiverCompany {
		return
	}
	r.AddPostEffect(func() {
		for _, c := range []*Company{senderCompany, receiverCompany} {
			if c == nil {
				continue
			}
			e.scheduleReputationRefresh(c.name, e.cfg().TaskDelay())
		}
	})
}

func (e *Engine) interceptTrade(act host.TradeAction) {
	c := e.reg.fromAlias(act.ShopOwner)
	if c == nil {
		return
	}
	verb := "bought"
	if act.Selling {
		verb = "sold"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e.notifyMembersLocked(c, "trades", fmt.Sprintf("%s: %s %s %d %s at %s", c.name, e.userName(act.Citizen), verb, act.Count, act.Item, act.Store))
}

func (e *Engine) interceptStartHomestead(act host.StartHomestead, r *host.PostResult) {
	if !e.cfg().PropertyLimitsEnabled || act.Citizen == "" {
		return
	}
	c := e.reg.employerOf(act.Citizen)
	if c == nil {
		return
	}
	c.mu.Lock()
	hq, has := e.hqDeedLocked(c)
	c.mu.Unlock()
	if has {
		r.Fail("Can't start a homestead when you're an employee of a company with a HQ")
		e.log.Debug().Str("company", c.name).Str("user_id", string(act.Citizen)).Str("deed_id", string(hq.ID)).Msg("homestead blocked, company has a hq")
		return
	}
	citizen, name := act.Citizen, c.name
	r.AddPostEffect(func() {
		if err := e.claimHomesteadAsHQ(citizen, name, true); err != nil {
			e.log.Error().Err(err).Str("company", name).Msg("claim homestead as hq")
		}
	})
}

func (e *Engine) interceptPlaceOrPickUp(act host.PlaceOrPickUp, r *host.PostResult) {
	if !e.cfg().PropertyLimitsEnabled || act.Citizen == "" || act.PickUp {
		return
	}
	c := e.reg.employerOf(act.Citizen)
	if c == nil {
		return
	}
	citizen, name, deed, stake := act.Citizen, c.name, act.Deed, act.ClaimStake
	r.AddPostEffect(func() {
		delay := e.cfg().TaskDelay()
		e.sched.After(delay, "auth:"+name, func() error { return e.RefreshAuthLists(name) })
		if stake {
			e.sched.After(delay, "take-claim:"+name, func() error { return e.takeClaim(citizen, name, deed) })
		}
	})
}

// ActionPerformed re-attributes committed money transfers touching a
// company account.
func (e *Engine) ActionPerformed(a host.Action) {
	mt, ok := a.(host.MoneyTransfer)
	if !ok {
		return
	}
	if src, ok := e.h.Account(mt.Source); ok {
		if c := e.companyForAccount(src); c != nil {
			e.onGiveMoney(c, mt)
		}
	}
	if dst, ok := e.h.Account(mt.Target); ok {
		if c := e.companyForAccount(dst); c != nil {
			e.onReceiveMoney(c, mt)
		}
	}
}

func (e *Engine) onGiveMoney(c *Company, mt host.MoneyTransfer) {
	c.mu.Lock()
	if c.inGive {
		c.mu.Unlock()
		return
	}
	c.inGive = true
	lp := c.legalPerson
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inGive = false
		c.mu.Unlock()
	}()
	r := e.h.Perform(host.CompanyExpense{Source: mt.Source, Target: mt.Target, Currency: mt.Currency, Amount: mt.Amount, Sender: lp})
	if !r.Success {
		e.log.Debug().Str("company", c.name).Str("reason", r.Message).Msg("company expense not recorded")
	}
}

func (e *Engine) onReceiveMoney(c *Company, mt host.MoneyTransfer) {
	c.mu.Lock()
	if c.inReceive {
		c.mu.Unlock()
		return
	}
	c.inReceive = true
	lp := c.legalPerson
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inReceive = false
		c.mu.Unlock()
	}()
	r := e.h.Perform(host.CompanyIncome{Source: mt.Source, Target: mt.Target, Currency: mt.Currency, Amount: mt.Amount, Receiver: lp})
	if !r.Success {
		e.log.Debug().Str("company", c.name).Str("reason", r.Message).Msg("company income not recorded")
	}
}

// OverrideAuth lets employees act on property their company owns. The HQ
// stays out of reach for transfers while property limits are on.
func (e *Engine) OverrideAuth(actor host.UserID, a host.Action) (host.Alias, bool) {
	switch act := a.(type) {
	case host.PropertyTransfer:
		var owner *Company
		for _, id := range act.Deeds {
			d, ok := e.h.Deed(id)
			if !ok {
				return nil, false
			}
			c := e.reg.fromAlias(d.Owners)
			if c == nil || (owner != nil && c != owner) {
				return nil, false
			}
			owner = c
		}
		if owner == nil {
			return nil, false
		}
		owner.mu.Lock()
		defer owner.mu.Unlock()
		if !owner.isEmployeeLocked(actor) {
			return nil, false
		}
		if e.cfg().PropertyLimitsEnabled {
			if hq := e.recordedHQLocked(owner); hq != "" {
				for _, id := range act.Deeds {
					if id == hq {
						return nil, false
					}
				}
			}
		}
		return host.Single(owner.legalPerson), true
	case host.ClaimOrUnclaim:
		c := e.reg.fromAlias(act.PreviousOwner)
		if c == nil {
			return nil, false
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.isEmployeeLocked(actor) {
			return nil, false
		}
		return host.Single(c.legalPerson), true
	}
	return nil, false
}

func (e *Engine) handlePermissionsChanged(ev host.PermissionsChanged) {
	if e.ignorePermissions.Load() > 0 {
		return
	}
	acc, ok := e.h.Account(ev.Account)
	if !ok {
		return
	}
	c := e.companyForAccount(acc)
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := e.updateAccountAuthLocked(c, acc); err != nil {
		e.log.Error().Err(err).Str("company", c.name).Str("account_id", string(acc.ID)).Msg("restore account permissions")
	}
}

func (e *Engine) handleBalanceChanged(ev host.BalanceChanged) {
	acc, ok := e.h.Account(ev.Account)
	if !ok || acc.Kind != host.AccountPersonal {
		return
	}
	c := e.reg.employerOf(acc.Owner)
	if c == nil {
		return
	}
	r := e.h.Perform(host.EmployeeWealthChanged{Employee: acc.Owner, LegalPerson: c.LegalPerson(), Account: acc.ID})
	if !r.Success {
		e.log.Debug().Str("company", c.name).Str("reason", r.Message).Msg("employee wealth change not recorded")
	}
}

func (e *Engine) handleUserLoggedOut(ev host.UserLoggedOut) {
	c := e.reg.employerOf(ev.User)
	if c == nil {
		return
	}
	e.scheduleReputationRefresh(c.name, e.cfg().TaskDelayLong())
}
