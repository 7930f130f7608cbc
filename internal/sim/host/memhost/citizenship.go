package memhost

import (
	"fmt"
	"sort"

	"companies.ai/internal/sim/host"
)

func cloneSettlement(s *host.Settlement) host.Settlement {
	c := *s
	c.Citizens = copyUsers(s.Citizens)
	c.Applicants = copyUsers(s.Applicants)
	c.Invitees = copyUsers(s.Invitees)
	c.Banned = copyUsers(s.Banned)
	return c
}

func (w *World) AddSettlement(name string, approver host.UserID, open bool) host.Settlement {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := &host.Settlement{ID: host.SettlementID(newID("S")), Name: name, Approver: approver, Open: open}
	w.settlements[s.ID] = s
	return cloneSettlement(s)
}

// InviteToSettlement records a pending settlement invitation for u.
func (w *World) InviteToSettlement(id host.SettlementID, u host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.settlements[id]
	if !ok {
		return fmt.Errorf("unknown settlement %s", id)
	}
	s.Invitees = addUnique(s.Invitees, u)
	return nil
}

// Ban stops u from joining id.
func (w *World) Ban(id host.SettlementID, u host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.settlements[id]
	if !ok {
		return fmt.Errorf("unknown settlement %s", id)
	}
	s.Banned = addUnique(s.Banned, u)
	return nil
}

// RemoveFromRosterOnly drops u from the roster without touching the user's
// cached citizenship, as a host glitch would.
func (w *World) RemoveFromRosterOnly(id host.SettlementID, u host.UserID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.settlements[id]; ok {
		s.Citizens = removeUser(s.Citizens, u)
	}
}

func (w *World) Settlement(id host.SettlementID) (host.Settlement, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.settlements[id]
	if !ok {
		return host.Settlement{}, false
	}
	return cloneSettlement(s), true
}

func (w *World) Settlements() []host.Settlement {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]host.Settlement, 0, len(w.settlements))
	for _, s := range w.settlements {
		out = append(out, cloneSettlement(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) HasCitizen(id host.SettlementID, u host.UserID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.settlements[id]
	return ok && contains(s.Citizens, u)
}

func contains(list []host.UserID, u host.UserID) bool {
	for _, x := range list {
		if x == u {
			return true
		}
	}
	return false
}

// AddToRoster enrolls u. A direct enrollment also sets the user's cached
// citizenship.
func (w *World) AddToRoster(id host.SettlementID, u host.UserID, direct bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.settlements[id]
	if !ok {
		return fmt.Errorf("unknown settlement %s", id)
	}
	usr, ok := w.users[u]
	if !ok {
		return fmt.Errorf("unknown user %s", u)
	}
	s.Citizens = addUnique(s.Citizens, u)
	s.Applicants = removeUser(s.Applicants, u)
	s.Invitees = removeUser(s.Invitees, u)
	if direct {
		w.setCitizenshipCacheLocked(usr, id)
	}
	return nil
}

func (w *World) Leave(id host.SettlementID, u host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.settlements[id]
	if !ok {
		return fmt.Errorf("unknown settlement %s", id)
	}
	s.Citizens = removeUser(s.Citizens, u)
	if usr, ok := w.users[u]; ok && usr.DirectCitizenship == id {
		w.setCitizenshipCacheLocked(usr, "")
	}
	return nil
}

func (w *World) Apply(id host.SettlementID, u host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.settlements[id]
	if !ok {
		return fmt.Errorf("unknown settlement %s", id)
	}
	s.Applicants = addUnique(s.Applicants, u)
	return nil
}

func (w *World) CanApply(id host.SettlementID, u host.UserID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.settlements[id]
	if !ok || !s.Open {
		return false
	}
	return !contains(s.Citizens, u) && !contains(s.Applicants, u) && !contains(s.Invitees, u)
}

func (w *World) CanAcceptInvitation(id host.SettlementID, u host.UserID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.settlements[id]
	return ok && contains(s.Invitees, u)
}

func (w *World) CanLeave(id host.SettlementID, u host.UserID) bool {
	return w.HasCitizen(id, u)
}

func (w *World) CheckCanJoin(id host.SettlementID, u host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.settlements[id]
	if !ok {
		return fmt.Errorf("unknown settlement %s", id)
	}
	if contains(s.Banned, u) {
		return fmt.Errorf("%s does not accept this citizen", s.Name)
	}
	return nil
}

func (w *World) CheckCanLeave(id host.SettlementID, u host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.settlements[id]
	if !ok {
		return fmt.Errorf("unknown settlement %s", id)
	}
	if !s.RetainsHomesteads {
		return nil
	}
	for _, d := range w.deeds {
		if d.Homestead && !d.Destroyed && d.Owners.Contains(u) && w.deedRegion[d.ID] == id {
			return fmt.Errorf("%s still holds a homestead in %s", u, s.Name)
		}
	}
	return nil
}

// SetRetainsHomesteads toggles the leave restriction on a settlement.
func (w *World) SetRetainsHomesteads(id host.SettlementID, v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.settlements[id]; ok {
		s.RetainsHomesteads = v
	}
}
