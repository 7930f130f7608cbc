package memhost

import (
	"fmt"
	"sort"

	"companies.ai/internal/sim/host"
)

// State is the durable shape of a World. Notices, the action log and
// queued bus items are transient and not part of it.
type State struct {
	BasePlots   int
	Users       []host.User
	Deeds       []host.Deed
	DeedRegion  map[host.DeedID]host.SettlementID
	Accounts    []host.Account
	Currencies  []host.Currency
	Settlements []host.Settlement
	Storages    []host.VoidStorage
	Reputation  map[host.UserID][]host.ReputationEntry
}

// Export copies the world. Users come back offline.
func (w *World) Export() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := State{
		BasePlots:  w.basePlots,
		DeedRegion: make(map[host.DeedID]host.SettlementID, len(w.deedRegion)),
		Reputation: make(map[host.UserID][]host.ReputationEntry, len(w.reputation)),
	}
	for _, u := range w.users {
		c := *u
		c.Online = false
		st.Users = append(st.Users, c)
	}
	sort.Slice(st.Users, func(i, j int) bool { return st.Users[i].ID < st.Users[j].ID })
	for _, d := range w.deeds {
		st.Deeds = append(st.Deeds, cloneDeed(d))
	}
	sort.Slice(st.Deeds, func(i, j int) bool { return st.Deeds[i].ID < st.Deeds[j].ID })
	for id, s := range w.deedRegion {
		st.DeedRegion[id] = s
	}
	for _, a := range w.accounts {
		st.Accounts = append(st.Accounts, cloneAccount(a))
	}
	sort.Slice(st.Accounts, func(i, j int) bool { return st.Accounts[i].ID < st.Accounts[j].ID })
	for _, c := range w.currencies {
		st.Currencies = append(st.Currencies, *c)
	}
	sort.Slice(st.Currencies, func(i, j int) bool { return st.Currencies[i].ID < st.Currencies[j].ID })
	for _, s := range w.settlements {
		st.Settlements = append(st.Settlements, cloneSettlement(s))
	}
	sort.Slice(st.Settlements, func(i, j int) bool { return st.Settlements[i].ID < st.Settlements[j].ID })
	for _, vs := range w.storages {
		c := *vs
		c.CanAccess = copyUsers(vs.CanAccess)
		st.Storages = append(st.Storages, c)
	}
	sort.Slice(st.Storages, func(i, j int) bool { return st.Storages[i].ID < st.Storages[j].ID })
	for u, entries := range w.reputation {
		st.Reputation[u] = append([]host.ReputationEntry(nil), entries...)
	}
	return st
}

// Import loads st into an empty world. No events are published.
func (w *World) Import(st State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.users) > 0 || len(w.deeds) > 0 || len(w.accounts) > 0 {
		return fmt.Errorf("memhost: import into non-empty world")
	}
	if st.BasePlots > 0 {
		w.basePlots = st.BasePlots
	}
	for i := range st.Users {
		u := st.Users[i]
		u.Online = false
		w.users[u.ID] = &u
	}
	for i := range st.Deeds {
		d := cloneDeed(&st.Deeds[i])
		w.deeds[d.ID] = &d
	}
	for id, s := range st.DeedRegion {
		w.deedRegion[id] = s
	}
	for i := range st.Accounts {
		a := cloneAccount(&st.Accounts[i])
		w.accounts[a.ID] = &a
	}
	for i := range st.Currencies {
		c := st.Currencies[i]
		w.currencies[c.ID] = &c
	}
	for i := range st.Settlements {
		s := cloneSettlement(&st.Settlements[i])
		w.settlements[s.ID] = &s
	}
	for i := range st.Storages {
		vs := st.Storages[i]
		vs.CanAccess = copyUsers(vs.CanAccess)
		w.storages[vs.ID] = &vs
	}
	for u, entries := range st.Reputation {
		w.reputation[u] = append([]host.ReputationEntry(nil), entries...)
	}
	return nil
}
