package companies

import (
	"errors"

	"companies.ai/internal/sim/host"
)

// onEmployeesChangedLocked is the roster-changed hook: every linked resource
// is re-synchronized and the record persisted.
func (e *Engine) onEmployeesChangedLocked(c *Company) {
	if err := e.updateAllAuthListsLocked(c); err != nil {
		e.log.Error().Err(err).Str("company", c.name).Msg("sync auth lists")
	}
	if err := e.refreshHQSizeLocked(c); err != nil {
		e.log.Error().Err(err).Str("company", c.name).Msg("refresh hq size")
	}
	e.persistLocked(c)
}

func (e *Engine) ownedDeedsLocked(c *Company) []host.Deed {
	if c.legalPerson == "" {
		return nil
	}
	var out []host.Deed
	for _, d := range e.h.Deeds() {
		if d.Owners.Contains(c.legalPerson) {
			out = append(out, d)
		}
	}
	return out
}

func (e *Engine) ownedAccountsLocked(c *Company) []host.Account {
	if c.legalPerson == "" {
		return nil
	}
	var out []host.Account
	for _, a := range e.h.Accounts() {
		if a.ID == c.account {
			out = append(out, a)
			continue
		}
		if a.Kind == host.AccountShared && a.IsManager(c.legalPerson) {
			out = append(out, a)
		}
	}
	return out
}

// hqDeedLocked resolves the recorded HQ: the delegate's homestead link.
func (e *Engine) hqDeedLocked(c *Company) (host.Deed, bool) {
	if c.legalPerson == "" {
		return host.Deed{}, false
	}
	lp, ok := e.h.User(c.legalPerson)
	if !ok || lp.HomesteadDeed == "" {
		return host.Deed{}, false
	}
	d, ok := e.h.Deed(lp.HomesteadDeed)
	if !ok || d.Destroyed {
		return host.Deed{}, false
	}
	return d, true
}

func (e *Engine) recordedHQLocked(c *Company) host.DeedID {
	if lp, ok := e.h.User(c.legalPerson); ok {
		return lp.HomesteadDeed
	}
	return ""
}

// hqSizeLocked is the HQ base plot count for the current roster.
func (e *Engine) hqSizeLocked(c *Company) int {
	base := e.h.BaseHomesteadPlots()
	if !e.cfg().PropertyLimitsEnabled {
		return base
	}
	n := len(c.allEmployeesLocked())
	if n == 0 {
		n = 1
	}
	return base * n
}

func (e *Engine) updateAllAuthListsLocked(c *Company) error {
	var errs []error
	for _, d := range e.ownedDeedsLocked(c) {
		errs = append(errs, e.updateDeedAuthLocked(c, d))
	}
	for _, a := range e.ownedAccountsLocked(c) {
		errs = append(errs, e.updateAccountAuthLocked(c, a))
	}
	errs = append(errs, e.updateVoidStoragesLocked(c))
	return errors.Join(errs...)
}

func (e *Engine) updateDeedAuthLocked(c *Company, d host.Deed) error {
	members := c.allEmployeesLocked()
	if !host.SameUsers(d.Accessors, members) {
		if err := e.h.SetAccessors(d.ID, members); err != nil {
			return err
		}
	}
	if d.ID != e.recordedHQLocked(c) {
		return nil
	}
	if !host.SameUsers(d.ResidencyInvites, members) {
		if err := e.h.SetResidencyInvites(d.ID, members); err != nil {
			return err
		}
	}
	if !d.AllowPlotsUnclaiming {
		return e.h.SetAllowPlotsUnclaiming(d.ID, true)
	}
	return nil
}

// updateAccountAuthLocked makes the delegate the only manager and every
// member a user.
func (e *Engine) updateAccountAuthLocked(c *Company, a host.Account) error {
	managers := []host.UserID{c.legalPerson}
	users := c.allEmployeesLocked()
	if host.SameUsers(a.Managers, managers) && host.SameUsers(a.Users, users) {
		return nil
	}
	e.ignorePermissions.Add(1)
	defer e.ignorePermissions.Add(-1)
	return e.h.SetPermissions(a.ID, managers, users)
}

func (e *Engine) updateVoidStoragesLocked(c *Company) error {
	var errs []error
	for _, vs := range e.h.Storages() {
		if !host.Alias(vs.CanAccess).Contains(c.legalPerson) {
			continue
		}
		errs = append(errs, e.grantVoidStorageLocked(c, vs))
	}
	return errors.Join(errs...)
}

func (e *Engine) grantVoidStorageLocked(c *Company, vs host.VoidStorage) error {
	var missing []host.UserID
	for _, u := range c.allEmployeesLocked() {
		if !host.Alias(vs.CanAccess).Contains(u) {
			missing = append(missing, u)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return e.h.GrantAccess(vs.ID, missing)
}

// refreshHQSizeLocked installs the HQ plot override and recounts plots only
// when the live count differs from the target.
func (e *Engine) refreshHQSizeLocked(c *Company) error {
	d, ok := e.hqDeedLocked(c)
	if !ok {
		return nil
	}
	size := e.hqSizeLocked(c)
	if d.PlotsOverride != size {
		if err := e.h.SetPlotsOverride(d.ID, size); err != nil {
			return err
		}
	}
	return e.refreshPlotsLocked(d, size)
}

func (e *Engine) refreshPlotsLocked(d host.Deed, base int) error {
	if d.ClaimPapers+base == d.AllowedPlots {
		return nil
	}
	e.log.Debug().Str("deed_id", string(d.ID)).Int("plots", d.ClaimPapers+base).Msg("deed resized")
	return e.h.RecalculatePlots(d.ID)
}

func (e *Engine) removePlotsOverrideLocked(d host.Deed) error {
	if d.PlotsOverride != 0 {
		if err := e.h.SetPlotsOverride(d.ID, 0); err != nil {
			return err
		}
	}
	return e.refreshPlotsLocked(d, e.h.BaseHomesteadPlots())
}

// RefreshAuthLists re-synchronizes every resource of a company.
func (e *Engine) RefreshAuthLists(company string) error {
	c, err := e.lookup(company)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := e.updateAllAuthListsLocked(c); err != nil {
		return e.internal(c, "update auth lists", err)
	}
	return nil
}

// RefreshHQSize recomputes the HQ plot count on demand.
func (e *Engine) RefreshHQSize(company string) (int, error) {
	c, err := e.lookup(company)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := e.hqDeedLocked(c); !ok {
		return 0, fail(ErrNotFound, "%s has no HQ", c.name)
	}
	if err := e.refreshHQSizeLocked(c); err != nil {
		return 0, e.internal(c, "refresh the HQ size", err)
	}
	return e.hqSizeLocked(c), nil
}
