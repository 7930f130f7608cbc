package companies

import (
	"fmt"
	"strings"

	"companies.ai/internal/sim/host"
)

// HandleEvent is the host event subscriber.
func (e *Engine) HandleEvent(ev host.Event) {
	switch x := ev.(type) {
	case host.DeedOwnerChanged:
		e.handleDeedOwnerChanged(x)
	case host.DeedDestroyed:
		e.handleDeedDestroyed(x)
	case host.VoidStorageAdded:
		e.handleVoidStorageAdded(x)
	case host.CitizenshipChanged:
		e.handleCitizenshipChanged(x)
	case host.PermissionsChanged:
		e.handlePermissionsChanged(x)
	case host.BalanceChanged:
		e.handleBalanceChanged(x)
	case host.UserLoggedOut:
		e.handleUserLoggedOut(x)
	}
}

func (e *Engine) handleDeedOwnerChanged(ev host.DeedOwnerChanged) {
	d, ok := e.h.Deed(ev.Deed)
	if !ok || d.Destroyed {
		return
	}
	for _, u := range ev.Before {
		if ev.After.Contains(u) {
			continue
		}
		if c := e.reg.fromLegalPerson(u); c != nil {
			c.mu.Lock()
			e.onNoLongerOwnerLocked(c, d)
			c.mu.Unlock()
		}
	}
	for _, u := range ev.After {
		if ev.Before.Contains(u) {
			continue
		}
		if c := e.reg.fromLegalPerson(u); c != nil {
			c.mu.Lock()
			// Re-read: the deed may have moved on while the lock was taken.
			if cur, ok := e.h.Deed(d.ID); ok && cur.Owners.Contains(u) {
				e.onNowOwnerLocked(c, cur)
			}
			c.mu.Unlock()
		}
	}
}

func (e *Engine) handleDeedDestroyed(ev host.DeedDestroyed) {
	for _, u := range ev.Deed.Owners {
		if c := e.reg.fromLegalPerson(u); c != nil {
			c.mu.Lock()
			e.onNoLongerOwnerLocked(c, ev.Deed)
			c.mu.Unlock()
		}
	}
}

func (e *Engine) handleVoidStorageAdded(ev host.VoidStorageAdded) {
	for _, vs := range e.h.Storages() {
		if vs.ID != ev.Storage {
			continue
		}
		for _, u := range vs.CanAccess {
			c := e.reg.fromLegalPerson(u)
			if c == nil {
				continue
			}
			c.mu.Lock()
			if err := e.grantVoidStorageLocked(c, vs); err != nil {
				e.log.Error().Err(err).Str("company", c.name).Str("storage_id", string(vs.ID)).Msg("grant void storage")
			}
			c.mu.Unlock()
		}
	}
}

// onNowOwnerLocked links a deed the delegate just gained. A homestead deed
// becomes the HQ.
func (e *Engine) onNowOwnerLocked(c *Company, d host.Deed) {
	e.log.Debug().Str("company", c.name).Str("deed_id", string(d.ID)).Msg("now owner of property")
	if d.Homestead {
		if err := e.adoptHQLocked(c, d); err != nil {
			e.log.Error().Err(err).Str("company", c.name).Str("deed_id", string(d.ID)).Msg("adopt hq")
		}
	} else {
		e.sendCompanyMessageLocked(c, c.name+" is now the owner of "+d.Name)
	}
	if cur, ok := e.h.Deed(d.ID); ok {
		if err := e.updateDeedAuthLocked(c, cur); err != nil {
			e.log.Error().Err(err).Str("company", c.name).Str("deed_id", string(d.ID)).Msg("update deed auth")
		}
	}
	e.auditLocked(c, "deed_gained", "", "", string(d.ID))
}

func (e *Engine) adoptHQLocked(c *Company, d host.Deed) error {
	lp := c.legalPerson
	if err := e.h.SetHomestead(lp, d.ID); err != nil {
		return err
	}
	if creator, ok := e.h.User(d.Creator); ok && creator.ID != lp && creator.HomesteadDeed == d.ID {
		if err := e.h.SetHomestead(creator.ID, ""); err != nil {
			return err
		}
	}
	var previousCitizenship host.SettlementID
	if creator, ok := e.h.User(d.Creator); ok {
		previousCitizenship = creator.DirectCitizenship
	}
	newName, err := e.h.Rename(d.ID, c.name+" HQ")
	if err != nil {
		return err
	}
	if err := e.h.SetCreator(d.ID, lp); err != nil {
		return err
	}
	if err := e.h.UpdateInfluencingSettlement(d.ID); err != nil {
		return err
	}
	cur, ok := e.h.Deed(d.ID)
	if !ok {
		return fmt.Errorf("deed %s vanished", d.ID)
	}
	size := e.hqSizeLocked(c)
	if cur.PlotsOverride != size {
		if err := e.h.SetPlotsOverride(cur.ID, size); err != nil {
			return err
		}
	}
	if err := e.refreshPlotsLocked(cur, size); err != nil {
		return err
	}

	target := e.legalPersonCitizenshipLocked(c)
	if target == "" {
		target = cur.OwningSettlement
		if target == "" {
			target = previousCitizenship
		}
	}
	if err := e.setCitizenOfLocked(c, target); err != nil {
		e.log.Warn().Err(err).Str("company", c.name).Str("settlement_id", string(target)).Msg("hq citizenship")
	}
	if err := e.h.SetAllowPlotsUnclaiming(cur.ID, true); err != nil {
		return err
	}
	e.sendCompanyMessageLocked(c, newName+" is now the new HQ of "+c.name)
	return nil
}

// onNoLongerOwnerLocked unlinks a deed the delegate lost.
func (e *Engine) onNoLongerOwnerLocked(c *Company, d host.Deed) {
	e.log.Debug().Str("company", c.name).Str("deed_id", string(d.ID)).Msg("no longer owner of property")
	if d.ID == e.recordedHQLocked(c) {
		if err := e.removePlotsOverrideLocked(d); err != nil {
			e.log.Error().Err(err).Str("deed_id", string(d.ID)).Msg("remove plots override")
		}
		if err := e.h.SetHomestead(c.legalPerson, ""); err != nil {
			e.log.Error().Err(err).Str("company", c.name).Msg("clear hq link")
		}
		if err := e.h.SetResidencyInvites(d.ID, nil); err != nil {
			e.log.Error().Err(err).Str("deed_id", string(d.ID)).Msg("clear residency invites")
		}
		e.sendCompanyMessageLocked(c, d.Name+" is no longer the HQ of "+c.name)
	} else {
		e.sendCompanyMessageLocked(c, c.name+" is no longer the owner of "+d.Name)
	}
	if err := e.h.SetAccessors(d.ID, nil); err != nil {
		e.log.Error().Err(err).Str("deed_id", string(d.ID)).Msg("clear accessors")
	}
	e.auditLocked(c, "deed_lost", "", "", string(d.ID))
}

// Report is the outcome of a desync check.
type Report struct {
	Corrected bool
	Message   string
}

// NoDesync is the message of a clean check.
const NoDesync = "no desync detected"

// CheckHQDesync reconciles the recorded HQ against the homestead deeds the
// delegate actually owns.
func (e *Engine) CheckHQDesync(company string) (Report, error) {
	c, err := e.lookup(company)
	if err != nil {
		return Report{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.checkHQDesyncLocked(c), nil
}

func (e *Engine) checkHQDesyncLocked(c *Company) Report {
	var owned []host.Deed
	for _, d := range e.ownedDeedsLocked(c) {
		if d.Homestead {
			owned = append(owned, d)
		}
	}
	recorded := e.recordedHQLocked(c)
	for _, d := range owned {
		if d.ID == recorded {
			return Report{Message: NoDesync}
		}
	}

	var msgs []string
	if recorded != "" {
		d, ok := e.h.Deed(recorded)
		if !ok {
			d = host.Deed{ID: recorded, Name: string(recorded)}
		}
		msgs = append(msgs, fmt.Sprintf("corrected: Detected incorrectly assigned HQ deed '%s' (deed was not owned by legal person), clearing...", d.Name))
		e.onNoLongerOwnerLocked(c, d)
		e.log.Info().Str("company", c.name).Str("deed_id", string(recorded)).Msg("hq desync cleared")
	}
	switch {
	case len(owned) == 1:
		msgs = append(msgs, fmt.Sprintf("corrected: Detected unassigned HQ deed '%s' (deed was owned by legal person but not set as homestead), updating...", owned[0].Name))
		e.onNowOwnerLocked(c, owned[0])
		e.log.Info().Str("company", c.name).Str("deed_id", string(owned[0].ID)).Msg("hq desync adopted")
	case len(owned) > 1:
		msgs = append(msgs, fmt.Sprintf("%s owns %d homestead deeds and none is its HQ; transfer all but one away", c.name, len(owned)))
	}
	if len(msgs) == 0 {
		return Report{Message: NoDesync}
	}
	return Report{Corrected: recorded != "" || len(owned) == 1, Message: strings.Join(msgs, "\n")}
}

// CheckAllDesync runs both desync checks for every company.
func (e *Engine) CheckAllDesync() []Report {
	var out []Report
	for _, c := range e.reg.all() {
		c.mu.Lock()
		hq := e.checkHQDesyncLocked(c)
		cz := e.checkCitizenshipDesyncLocked(c)
		c.mu.Unlock()
		for _, r := range []Report{hq, cz} {
			if r.Corrected {
				r.Message = c.name + ": " + r.Message
				out = append(out, r)
			}
		}
	}
	return out
}

// claimHomesteadAsHQ converts an employee's homestead into the HQ. When the
// host has not committed the homestead yet it retries once after the task
// delay, and that retry never defers again.
func (e *Engine) claimHomesteadAsHQ(employee host.UserID, company string, allowRetry bool) error {
	c := e.reg.get(company)
	if c == nil {
		return nil
	}
	u, ok := e.h.User(employee)
	if !ok {
		return fmt.Errorf("claim hq: unknown user %s", employee)
	}
	if u.HomesteadDeed == "" {
		if allowRetry {
			e.log.Debug().Str("company", company).Str("user_id", string(employee)).Msg("homestead not committed yet, retrying")
			e.sched.After(e.cfg().TaskDelay(), "claim-hq:"+company, func() error {
				return e.claimHomesteadAsHQ(employee, company, false)
			})
			return nil
		}
		return fmt.Errorf("claim hq for %s: %s has no homestead deed", company, u.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isEmployeeLocked(employee) {
		return nil
	}
	if _, has := e.hqDeedLocked(c); has {
		return nil
	}
	return e.transferHomesteadLocked(c, employee, u.HomesteadDeed)
}

func (e *Engine) transferHomesteadLocked(c *Company, employee host.UserID, deed host.DeedID) error {
	d, ok := e.h.Deed(deed)
	if !ok {
		return fmt.Errorf("unknown deed %s", deed)
	}
	if lp, ok := d.Owners.Sole(); ok && lp == c.legalPerson {
		return nil
	}
	if err := e.h.SetOwner(deed, host.Single(c.legalPerson)); err != nil {
		return err
	}
	return e.h.SetHomestead(employee, "")
}

// takeClaim hands deeds an employee just claimed over to the company.
func (e *Engine) takeClaim(employee host.UserID, company string, deed host.DeedID) error {
	c := e.reg.get(company)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isEmployeeLocked(employee) {
		return nil
	}
	for _, d := range e.h.Deeds() {
		if deed != "" && d.ID != deed {
			continue
		}
		owner, ok := d.Owners.Sole()
		if !ok || owner != employee || d.Homestead {
			continue
		}
		if err := e.h.SetOwner(d.ID, host.Single(c.legalPerson)); err != nil {
			return err
		}
		e.log.Debug().Str("company", c.name).Str("deed_id", string(d.ID)).Msg("took over claim")
	}
	return nil
}
