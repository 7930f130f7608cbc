package companies

import (
	"sort"
	"sync"
	"time"

	"companies.ai/internal/sim/host"
)

// Company is one organization. name and the delegate resources never change
// after founding; everything else is guarded by mu.
type Company struct {
	name string

	mu          sync.Mutex
	ceo         host.UserID
	employees   map[host.UserID]struct{}
	invites     map[host.UserID]struct{}
	legalPerson host.UserID
	account     host.AccountID
	currency    host.CurrencyID
	creator     host.UserID
	createdAt   time.Time

	// Single-flight guards for money attribution, one per direction.
	inReceive bool
	inGive    bool
}

func newCompany(name string, creator host.UserID, now time.Time) *Company {
	return &Company{
		name:      name,
		creator:   creator,
		createdAt: now,
		employees: map[host.UserID]struct{}{},
		invites:   map[host.UserID]struct{}{},
	}
}

func (c *Company) Name() string { return c.name }

func (c *Company) LegalPerson() host.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.legalPerson
}

func (c *Company) CEO() host.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ceo
}

// allEmployeesLocked returns the CEO followed by the other members in id
// order.
func (c *Company) allEmployeesLocked() []host.UserID {
	out := make([]host.UserID, 0, len(c.employees)+1)
	if c.ceo != "" {
		out = append(out, c.ceo)
	}
	return append(out, sortedSet(c.employees)...)
}

func (c *Company) isEmployeeLocked(u host.UserID) bool {
	if u == "" {
		return false
	}
	if u == c.ceo {
		return true
	}
	_, ok := c.employees[u]
	return ok
}

func (c *Company) isInvitedLocked(u host.UserID) bool {
	_, ok := c.invites[u]
	return ok
}

func (c *Company) IsEmployee(u host.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isEmployeeLocked(u)
}

func (c *Company) IsInvited(u host.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isInvitedLocked(u)
}

func (c *Company) AllEmployees() []host.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allEmployeesLocked()
}

func (c *Company) Invites() []host.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedSet(c.invites)
}

func sortedSet(m map[host.UserID]struct{}) []host.UserID {
	out := make([]host.UserID, 0, len(m))
	for u := range m {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
