package companies

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"companies.ai/internal/sim/host"
)

// Record is the durable shape of a company.
type Record struct {
	Name        string          `json:"name"`
	CEO         host.UserID     `json:"ceo"`
	Members     []host.UserID   `json:"members"`
	Invites     []host.UserID   `json:"invites"`
	LegalPerson host.UserID     `json:"legal_person"`
	Account     host.AccountID  `json:"account"`
	Currency    host.CurrencyID `json:"currency"`
	Creator     host.UserID     `json:"creator"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (c *Company) recordLocked() Record {
	return Record{
		Name:        c.name,
		CEO:         c.ceo,
		Members:     sortedSet(c.employees),
		Invites:     sortedSet(c.invites),
		LegalPerson: c.legalPerson,
		Account:     c.account,
		Currency:    c.currency,
		Creator:     c.creator,
		CreatedAt:   c.createdAt,
	}
}

func (c *Company) Record() Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordLocked()
}

// Records returns every company record in name order.
func (e *Engine) Records() []Record {
	all := e.reg.all()
	out := make([]Record, 0, len(all))
	for _, c := range all {
		out = append(out, c.Record())
	}
	return out
}

// Restore loads records into an empty engine. Records that would break
// global uniqueness lose the conflicting members, or their CEO. Records
// with a duplicate name or no legal person are skipped and reported in the
// returned error.
func (e *Engine) Restore(records []Record) error {
	var errs []error
	sorted := append([]Record(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })
	for _, r := range sorted {
		if r.LegalPerson == "" {
			errs = append(errs, fmt.Errorf("%s: record has no legal person", r.Name))
			continue
		}
		c := newCompany(r.Name, r.Creator, r.CreatedAt)
		c.mu.Lock()
		c.legalPerson = r.LegalPerson
		c.account = r.Account
		c.currency = r.Currency
		ceo := r.CEO
		err := e.reg.reserve(c, ceo)
		if errors.Is(err, ErrStateChanged) {
			// The CEO already runs an older company; keep this one without a CEO.
			e.log.Warn().Str("company", r.Name).Str("user_id", string(ceo)).Msg("restoring company without its ceo, who is employed elsewhere")
			ceo = ""
			err = e.reg.reserve(c, "")
		}
		if err != nil {
			c.mu.Unlock()
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
			continue
		}
		e.reg.bindDelegate(c, r.LegalPerson, r.Account)
		c.ceo = ceo
		for _, u := range r.Members {
			if u == r.CEO {
				continue
			}
			if !e.reg.claim(u, c) {
				e.log.Warn().Str("company", r.Name).Str("user_id", string(u)).Msg("dropping member employed elsewhere")
				continue
			}
			c.employees[u] = struct{}{}
		}
		for _, u := range r.Invites {
			if _, member := c.employees[u]; !member && u != r.CEO {
				c.invites[u] = struct{}{}
			}
		}
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}
