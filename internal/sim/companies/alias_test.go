package companies

import (
	"testing"

	"companies.ai/internal/sim/host"
)

func TestRemap(t *testing.T) {
	cases := []struct {
		slot Slot
		in   Resolver
		want Resolver
	}{
		{SlotAlias, AccountLegalPerson, AccountLegalPersonAlias},
		{SlotUser, AccountLegalPersonAlias, AccountLegalPerson},
		{SlotAlias, EmployerLegalPerson, EmployerLegalPersonAlias},
		{SlotUser, EmployerLegalPersonAlias, EmployerLegalPerson},
		{SlotAlias, CompanyCeo, CompanyCeoAlias},
		{SlotUser, CompanyCeoAlias, CompanyCeo},
		{SlotUser, CompanyCeo, CompanyCeo},
		{SlotAlias, CompanyCeoAlias, CompanyCeoAlias},
	}
	for _, tc := range cases {
		if got := Remap(tc.slot, tc.in); got != tc.want {
			t.Fatalf("Remap(%s, %s) = %s, want %s", tc.slot, tc.in, got, tc.want)
		}
	}
}

func TestParseResolver(t *testing.T) {
	if r, err := ParseResolver("EmployerLegalPerson"); err != nil || r != EmployerLegalPerson {
		t.Fatalf("parse = %q, %v", r, err)
	}
	_, err := ParseResolver("employerlegalperson")
	wantErr(t, err, ErrInvalidTarget)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	alice, bob, dave := f.user("alice"), f.user("bob"), f.user("dave")
	c := f.found(alice, "Acme")
	f.hire(c, bob)
	lp := c.LegalPerson()
	acc := f.account(c).ID

	cases := []struct {
		name string
		slot Slot
		r    Resolver
		ctx  ResolveContext
		want host.Alias
	}{
		{"account", SlotUser, AccountLegalPerson, ResolveContext{Account: acc}, host.Alias{lp}},
		{"account alias slot", SlotAlias, AccountLegalPerson, ResolveContext{Account: acc}, host.Alias{lp}},
		{"employer", SlotUser, EmployerLegalPersonAlias, ResolveContext{Citizen: bob}, host.Alias{lp}},
		{"no employer", SlotUser, EmployerLegalPerson, ResolveContext{Citizen: dave}, nil},
		{"ceo of employee", SlotUser, CompanyCeo, ResolveContext{Citizen: bob}, host.Alias{alice}},
		{"ceo of delegate", SlotAlias, CompanyCeo, ResolveContext{Citizen: lp}, host.Alias{alice}},
	}
	for _, tc := range cases {
		got, err := f.e.Resolve(tc.slot, tc.r, tc.ctx)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !host.SameUsers(got, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}

	personal, _ := f.w.PersonalAccount(dave)
	if got, err := f.e.Resolve(SlotUser, AccountLegalPerson, ResolveContext{Account: personal.ID}); err != nil || got != nil {
		t.Fatalf("personal account = %v, %v", got, err)
	}
	_, err := f.e.Resolve(SlotUser, AccountLegalPerson, ResolveContext{Account: "missing"})
	wantErr(t, err, ErrNotFound)
}
