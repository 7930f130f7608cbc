package companies

import (
	"fmt"

	"companies.ai/internal/sim/host"
)

// Slot is the value type a rule parameter accepts.
type Slot int

const (
	SlotUser Slot = iota
	SlotAlias
)

func (s Slot) String() string {
	if s == SlotAlias {
		return "alias"
	}
	return "user"
}

// Resolver names a company-derived value that rules can reference.
type Resolver string

const (
	AccountLegalPerson       Resolver = "AccountLegalPerson"
	AccountLegalPersonAlias  Resolver = "AccountLegalPersonAlias"
	EmployerLegalPerson      Resolver = "EmployerLegalPerson"
	EmployerLegalPersonAlias Resolver = "EmployerLegalPersonAlias"
	CompanyCeo               Resolver = "CompanyCeo"
	CompanyCeoAlias          Resolver = "CompanyCeoAlias"
)

type remapKey struct {
	slot     Slot
	supplied Resolver
}

// remap picks the concrete resolver for a slot when a client supplies the
// variant of the other shape.
var remap = map[remapKey]Resolver{
	{SlotAlias, AccountLegalPerson}:      AccountLegalPersonAlias,
	{SlotUser, AccountLegalPersonAlias}:  AccountLegalPerson,
	{SlotAlias, EmployerLegalPerson}:     EmployerLegalPersonAlias,
	{SlotUser, EmployerLegalPersonAlias}: EmployerLegalPerson,
	{SlotAlias, CompanyCeo}:              CompanyCeoAlias,
	{SlotUser, CompanyCeoAlias}:          CompanyCeo,
}

// Remap returns the resolver to install into slot when r was supplied.
func Remap(slot Slot, r Resolver) Resolver {
	if to, ok := remap[remapKey{slot, r}]; ok {
		return to
	}
	return r
}

// ParseResolver accepts a resolver name case-sensitively.
func ParseResolver(s string) (Resolver, error) {
	switch r := Resolver(s); r {
	case AccountLegalPerson, AccountLegalPersonAlias, EmployerLegalPerson, EmployerLegalPersonAlias, CompanyCeo, CompanyCeoAlias:
		return r, nil
	}
	return "", fail(ErrInvalidTarget, "Unknown resolver '%s'", s)
}

// ResolveContext carries the action inputs a resolver reads.
type ResolveContext struct {
	Citizen host.UserID
	Account host.AccountID
}

// Resolve evaluates r for slot after remapping. User slots yield a one-user
// alias.
func (e *Engine) Resolve(slot Slot, r Resolver, ctx ResolveContext) (host.Alias, error) {
	r = Remap(slot, r)
	var u host.UserID
	switch r {
	case AccountLegalPerson, AccountLegalPersonAlias:
		acc, ok := e.h.Account(ctx.Account)
		if !ok {
			return nil, fail(ErrNotFound, "Unknown account %s", ctx.Account)
		}
		if c := e.companyForAccount(acc); c != nil {
			u = c.LegalPerson()
		}
	case EmployerLegalPerson, EmployerLegalPersonAlias:
		if c := e.reg.employerOf(ctx.Citizen); c != nil {
			u = c.LegalPerson()
		}
	case CompanyCeo, CompanyCeoAlias:
		c := e.reg.employerOf(ctx.Citizen)
		if c == nil {
			c = e.reg.fromLegalPerson(ctx.Citizen)
		}
		if c != nil {
			u = c.CEO()
		}
	default:
		return nil, fmt.Errorf("resolve: unknown resolver %q", r)
	}
	return host.Single(u), nil
}
