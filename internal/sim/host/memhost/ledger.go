package memhost

import (
	"fmt"
	"sort"
	"strings"

	"companies.ai/internal/sim/host"
)

func cloneAccount(a *host.Account) host.Account {
	c := *a
	c.Managers = copyUsers(a.Managers)
	c.Users = copyUsers(a.Users)
	c.Holdings = make(map[host.CurrencyID]float64, len(a.Holdings))
	for k, v := range a.Holdings {
		c.Holdings[k] = v
	}
	return c
}

func (w *World) Account(id host.AccountID) (host.Account, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.accounts[id]
	if !ok {
		return host.Account{}, false
	}
	return cloneAccount(a), true
}

func (w *World) Accounts() []host.Account {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]host.Account, 0, len(w.accounts))
	for _, a := range w.accounts {
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) PersonalAccount(owner host.UserID) (host.Account, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, a := range w.accounts {
		if a.Kind == host.AccountPersonal && a.Owner == owner {
			return cloneAccount(a), true
		}
	}
	return host.Account{}, false
}

func (w *World) accountNameTakenLocked(name string) bool {
	for _, a := range w.accounts {
		if strings.EqualFold(a.Name, name) {
			return true
		}
	}
	return false
}

func (w *World) UniqueAccountName(base string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return uniqueName(base, w.accountNameTakenLocked)
}

func (w *World) CreateAccount(name string, kind host.AccountKind, owner host.UserID) (host.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.accountNameTakenLocked(name) {
		return host.Account{}, fmt.Errorf("account name %q taken", name)
	}
	a := &host.Account{
		ID:       host.AccountID(newID("A")),
		Name:     name,
		Kind:     kind,
		Owner:    owner,
		Holdings: map[host.CurrencyID]float64{},
	}
	if owner != "" {
		a.Managers = []host.UserID{owner}
	}
	w.accounts[a.ID] = a
	return cloneAccount(a), nil
}

// SetPermissions raises PermissionsChanged only when a set actually changed.
func (w *World) SetPermissions(id host.AccountID, managers, users []host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.accounts[id]
	if !ok {
		return fmt.Errorf("unknown account %s", id)
	}
	if host.SameUsers(a.Managers, managers) && host.SameUsers(a.Users, users) {
		return nil
	}
	a.Managers = copyUsers(managers)
	a.Users = copyUsers(users)
	w.bus.publish(host.PermissionsChanged{Account: id})
	return nil
}

// GrantUse adds u to an account's user set, as a player would from the UI.
func (w *World) GrantUse(id host.AccountID, u host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.accounts[id]
	if !ok {
		return fmt.Errorf("unknown account %s", id)
	}
	a.Users = addUnique(a.Users, u)
	w.bus.publish(host.PermissionsChanged{Account: id})
	return nil
}

func (w *World) Deposit(id host.AccountID, c host.CurrencyID, amount float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.accounts[id]
	if !ok {
		return fmt.Errorf("unknown account %s", id)
	}
	a.Holdings[c] += amount
	w.bus.publish(host.BalanceChanged{Account: id})
	return nil
}

func (w *World) transferLocked(src, dst host.AccountID, c host.CurrencyID, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be > 0")
	}
	from, ok := w.accounts[src]
	if !ok {
		return fmt.Errorf("unknown account %s", src)
	}
	to, ok := w.accounts[dst]
	if !ok {
		return fmt.Errorf("unknown account %s", dst)
	}
	if from.Holdings[c] < amount {
		return fmt.Errorf("insufficient funds in %s", from.Name)
	}
	from.Holdings[c] -= amount
	to.Holdings[c] += amount
	w.bus.publish(host.BalanceChanged{Account: src})
	w.bus.publish(host.BalanceChanged{Account: dst})
	return nil
}

func (w *World) Currency(id host.CurrencyID) (host.Currency, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.currencies[id]
	if !ok {
		return host.Currency{}, false
	}
	return *c, true
}

func (w *World) currencyNameTakenLocked(name string) bool {
	for _, c := range w.currencies {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (w *World) UniqueCurrencyName(base string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return uniqueName(base, w.currencyNameTakenLocked)
}

func (w *World) CreateCurrency(name string, creator host.UserID) (host.Currency, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currencyNameTakenLocked(name) {
		return host.Currency{}, fmt.Errorf("currency name %q taken", name)
	}
	c := &host.Currency{ID: host.CurrencyID(newID("C")), Name: name, Creator: creator}
	w.currencies[c.ID] = c
	return *c, nil
}
