package companies

import (
	"fmt"
	"strings"

	"companies.ai/internal/sim/host"
)

func (e *Engine) names(ids []host.UserID) string {
	if len(ids) == 0 {
		return "None."
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = e.userName(id)
	}
	return strings.Join(out, ", ")
}

// Summary renders the company card: CEO, employees, finances, HQ,
// property and citizenship.
func (e *Engine) Summary(company string) (string, error) {
	c, err := e.lookup(company)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", c.name)
	fmt.Fprintf(&b, "CEO: %s\n", e.userName(c.ceo))
	fmt.Fprintf(&b, "Employees: %s\n", e.names(sortedSet(c.employees)))

	var accounts []string
	for _, a := range e.ownedAccountsLocked(c) {
		accounts = append(accounts, a.Name)
	}
	if len(accounts) == 0 {
		accounts = []string{"None."}
	}
	fmt.Fprintf(&b, "Finances: %s\n", strings.Join(accounts, ", "))

	hq, hasHQ := e.hqDeedLocked(c)
	if hasHQ {
		fmt.Fprintf(&b, "HQ: %s (%d/%d plots)\n", hq.Name, hq.ClaimedPlots, hq.AllowedPlots)
	} else {
		b.WriteString("HQ: None.\n")
	}
	var property []string
	for _, d := range e.ownedDeedsLocked(c) {
		if hasHQ && d.ID == hq.ID {
			continue
		}
		property = append(property, d.Name)
	}
	if len(property) == 0 {
		property = []string{"None."}
	}
	fmt.Fprintf(&b, "Property: %s\n", strings.Join(property, ", "))
	if s := e.legalPersonCitizenshipLocked(c); s != "" {
		fmt.Fprintf(&b, "Citizenship: %s", e.settlementName(s))
	} else {
		b.WriteString("Citizenship: None.")
	}
	return b.String(), nil
}

// HQStatus describes the current HQ of company.
func (e *Engine) HQStatus(company string) (string, error) {
	c, err := e.lookup(company)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := e.hqDeedLocked(c); ok {
		return fmt.Sprintf("%s currently has %s as it's HQ.", c.name, d.Name), nil
	}
	return c.name + " currently has no HQ.", nil
}

func (e *Engine) CitizenshipStatus(company string) (string, error) {
	c, err := e.lookup(company)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := e.legalPersonCitizenshipLocked(c); s != "" {
		return fmt.Sprintf("%s is currently a direct citizen of %s.", c.name, e.settlementName(s)), nil
	}
	return c.name + " is currently not a citizen of any settlement.", nil
}

// List renders one line per company.
func (e *Engine) List() string {
	var b strings.Builder
	for _, c := range e.reg.all() {
		c.mu.Lock()
		hq := "no HQ"
		if d, ok := e.hqDeedLocked(c); ok {
			hq = "HQ at " + d.Name
		}
		fmt.Fprintf(&b, "%s managed by %s with %s (%d employees)\n", c.name, e.userName(c.ceo), hq, len(c.allEmployeesLocked()))
		c.mu.Unlock()
	}
	if b.Len() == 0 {
		return "There are no companies."
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// InvitesText answers the invites query for u.
func (e *Engine) InvitesText(u host.UserID) string {
	if c := e.reg.employerOf(u); c != nil {
		return fmt.Sprintf("You are an employee of %s...", c.name)
	}
	var b strings.Builder
	for _, c := range e.reg.all() {
		if !c.IsInvited(u) {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("You have invites from the following companies:\n")
		}
		fmt.Fprintf(&b, "%s managed by %s\n", c.name, e.userName(c.CEO()))
	}
	if b.Len() == 0 {
		return "You have no pending invites"
	}
	return strings.TrimSuffix(b.String(), "\n")
}
