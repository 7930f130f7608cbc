package memhost

import (
	"fmt"

	"companies.ai/internal/sim/host"
)

func (w *World) AddInterceptor(i host.Interceptor) {
	w.hooksMu.Lock()
	w.interceptors = append(w.interceptors, i)
	w.hooksMu.Unlock()
}

func (w *World) AddListener(l host.Listener) {
	w.hooksMu.Lock()
	w.listeners = append(w.listeners, l)
	w.hooksMu.Unlock()
}

func (w *World) AddAuthOverrider(o host.AuthOverrider) {
	w.hooksMu.Lock()
	w.overriders = append(w.overriders, o)
	w.hooksMu.Unlock()
}

func (w *World) hooks() ([]host.Interceptor, []host.Listener, []host.AuthOverrider) {
	w.hooksMu.RLock()
	defer w.hooksMu.RUnlock()
	return append([]host.Interceptor(nil), w.interceptors...),
		append([]host.Listener(nil), w.listeners...),
		append([]host.AuthOverrider(nil), w.overriders...)
}

// Perform runs a through auth, interceptors, commit, post effects and
// listeners, in that order. Hooks run without the world lock held.
func (w *World) Perform(a host.Action) host.PostResult {
	r := host.Succeeded()
	interceptors, listeners, overriders := w.hooks()

	if msg, ok := w.authorize(a, overriders); !ok {
		r.Fail(msg)
		return r
	}
	for _, i := range interceptors {
		i.Intercept(a, &r)
	}
	if !r.Success {
		w.log.Debug().Str("action", a.ActionName()).Str("reason", r.Message).Msg("action blocked")
		return r
	}
	if err := w.commit(a); err != nil {
		r.Fail(err.Error())
		return r
	}
	for _, fn := range r.PostEffects {
		fn()
	}
	for _, l := range listeners {
		l.ActionPerformed(a)
	}
	return r
}

func (w *World) authorize(a host.Action, overriders []host.AuthOverrider) (string, bool) {
	overridden := func() bool {
		for _, o := range overriders {
			if _, ok := o.OverrideAuth(actorOf(a), a); ok {
				return true
			}
		}
		return false
	}
	switch act := a.(type) {
	case host.PropertyTransfer:
		w.mu.Lock()
		owns := len(act.Deeds) > 0
		for _, id := range act.Deeds {
			d, ok := w.deeds[id]
			if !ok || d.Destroyed {
				w.mu.Unlock()
				return fmt.Sprintf("unknown deed %s", id), false
			}
			if !d.Owners.Contains(act.Citizen) {
				owns = false
			}
		}
		w.mu.Unlock()
		if owns || overridden() {
			return "", true
		}
		return "You are not authorized to transfer this property.", false
	case host.ClaimOrUnclaim:
		w.mu.Lock()
		d, ok := w.deeds[act.Deed]
		owns := ok && d.Owners.Contains(act.Citizen)
		w.mu.Unlock()
		if !ok {
			return fmt.Sprintf("unknown deed %s", act.Deed), false
		}
		if owns || overridden() {
			return "", true
		}
		return "You are not authorized to claim or unclaim plots on this deed.", false
	case host.MoneyTransfer:
		if act.Citizen == "" {
			return "", true
		}
		w.mu.Lock()
		acc, ok := w.accounts[act.Source]
		allowed := ok && (acc.Owner == act.Citizen || contains(acc.Managers, act.Citizen) || contains(acc.Users, act.Citizen))
		w.mu.Unlock()
		if !allowed {
			return "You are not authorized to use this account.", false
		}
		return "", true
	case host.StartHomestead:
		w.mu.Lock()
		u, ok := w.users[act.Citizen]
		has := ok && u.HomesteadDeed != ""
		w.mu.Unlock()
		if !ok {
			return fmt.Sprintf("unknown user %s", act.Citizen), false
		}
		if has {
			return "You already have a homestead.", false
		}
		return "", true
	}
	return "", true
}

func actorOf(a host.Action) host.UserID {
	switch act := a.(type) {
	case host.PropertyTransfer:
		return act.Citizen
	case host.ClaimOrUnclaim:
		return act.Citizen
	case host.MoneyTransfer:
		return act.Citizen
	case host.StartHomestead:
		return act.Citizen
	case host.PlaceOrPickUp:
		return act.Citizen
	case host.TradeAction:
		return act.Citizen
	case host.ReputationTransfer:
		return act.Sender
	}
	return ""
}

func (w *World) commit(a host.Action) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch act := a.(type) {
	case host.MoneyTransfer:
		if err := w.transferLocked(act.Source, act.Target, act.Currency, act.Amount); err != nil {
			return err
		}
	case host.ReputationTransfer:
		src := string(act.Sender)
		if u, ok := w.users[act.Sender]; ok {
			src = u.Name
		}
		if act.Target == host.ReputationToUser {
			w.reputation[act.Receiver] = append(w.reputation[act.Receiver], host.ReputationEntry{Source: src, Amount: act.Amount})
		}
	case host.PropertyTransfer:
		for _, id := range act.Deeds {
			if err := w.setOwnerLocked(id, act.NewOwner); err != nil {
				return err
			}
		}
	case host.ClaimOrUnclaim:
		d := w.deeds[act.Deed]
		if act.Claim {
			if d.ClaimedPlots >= d.AllowedPlots {
				return fmt.Errorf("%s has no plots left to claim", d.Name)
			}
			d.ClaimedPlots++
		} else if d.ClaimedPlots > 0 {
			d.ClaimedPlots--
		}
	case host.StartHomestead:
		// The deed only exists once the world commits the placed stake.
		citizen, name := act.Citizen, act.Name
		w.bus.later(func() { w.commitHomestead(citizen, name) })
	case host.PlaceOrPickUp:
		if act.ClaimStake && !act.PickUp && act.Deed == "" {
			citizen := act.Citizen
			w.bus.later(func() { w.commitClaim(citizen) })
		}
	}
	w.actionLog = append(w.actionLog, a)
	return nil
}

func (w *World) commitHomestead(citizen host.UserID, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	u, ok := w.users[citizen]
	if !ok || u.HomesteadDeed != "" {
		return
	}
	if name == "" {
		name = u.Name + "'s Homestead"
	}
	var region host.SettlementID
	if u.DirectCitizenship != "" {
		region = u.DirectCitizenship
	}
	d := w.addDeedLocked(name, citizen, true, region)
	w.log.Debug().Str("deed_id", string(d.ID)).Str("user_id", string(citizen)).Msg("homestead committed")
}

func (w *World) commitClaim(citizen host.UserID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	u, ok := w.users[citizen]
	if !ok {
		return
	}
	w.addDeedLocked(u.Name+"'s Claim", citizen, false, u.DirectCitizenship)
}
