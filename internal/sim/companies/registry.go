package companies

import (
	"sort"
	"strings"
	"sync"

	"companies.ai/internal/sim/host"
)

// registry is the authoritative company index. It also owns the
// user -> employer index that enforces one employer per user.
//
// Lock order: a company lock may be held while taking mu, never the reverse.
type registry struct {
	mu            sync.RWMutex
	byName        map[string]*Company
	employer      map[host.UserID]*Company
	byLegalPerson map[host.UserID]*Company
	byAccount     map[host.AccountID]*Company
}

func newRegistry() *registry {
	return &registry{
		byName:        map[string]*Company{},
		employer:      map[host.UserID]*Company{},
		byLegalPerson: map[host.UserID]*Company{},
		byAccount:     map[host.AccountID]*Company{},
	}
}

func nameKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (r *registry) get(name string) *Company {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[nameKey(name)]
}

func (r *registry) all() []*Company {
	r.mu.RLock()
	out := make([]*Company, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return nameKey(out[i].name) < nameKey(out[j].name) })
	return out
}

func (r *registry) employerOf(u host.UserID) *Company {
	if u == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.employer[u]
}

func (r *registry) fromLegalPerson(u host.UserID) *Company {
	if u == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byLegalPerson[u]
}

// fromAlias returns the company whose delegate is the alias' only member.
func (r *registry) fromAlias(a host.Alias) *Company {
	u, ok := a.Sole()
	if !ok {
		return nil
	}
	return r.fromLegalPerson(u)
}

func (r *registry) fromAccount(id host.AccountID) *Company {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byAccount[id]
}

// reserve inserts c under its name and claims its creator's employment.
func (r *registry) reserve(c *Company, ceo host.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[nameKey(c.name)]; ok {
		return fail(ErrNameTaken, "A company with the name '%s' already exists", c.name)
	}
	if other := r.employer[ceo]; ceo != "" && other != nil {
		return fail(ErrStateChanged, "Something changed since you tried to create the company: you are already a member of %s. Please try again.", other.name)
	}
	r.byName[nameKey(c.name)] = c
	if ceo != "" {
		r.employer[ceo] = c
	}
	return nil
}

func (r *registry) unreserve(c *Company) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName[nameKey(c.name)] == c {
		delete(r.byName, nameKey(c.name))
	}
	for u, e := range r.employer {
		if e == c {
			delete(r.employer, u)
		}
	}
}

func (r *registry) bindDelegate(c *Company, lp host.UserID, acc host.AccountID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLegalPerson[lp] = c
	r.byAccount[acc] = c
}

// claim records c as u's employer. It fails when another company holds u.
func (r *registry) claim(u host.UserID, c *Company) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if other := r.employer[u]; other != nil && other != c {
		return false
	}
	r.employer[u] = c
	return true
}

func (r *registry) release(u host.UserID, c *Company) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.employer[u] == c {
		delete(r.employer, u)
	}
}

// nameReserved reports whether name collides with any company name or any
// company delegate name, in either direction.
func (r *registry) nameReserved(name string, delegateOf func(string) string) (*Company, bool) {
	key := nameKey(name)
	delegate := nameKey(delegateOf(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, c := range r.byName {
		if k == key || k == delegate || nameKey(delegateOf(c.name)) == key {
			return c, true
		}
	}
	return nil, false
}
