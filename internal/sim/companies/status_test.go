package companies

import (
	"strings"
	"testing"
)

func TestStatus_SummaryAndList(t *testing.T) {
	f := newFixture(t)
	if got := f.e.List(); got != "There are no companies." {
		t.Fatalf("empty list = %q", got)
	}
	alice, bob := f.user("alice"), f.user("bob")
	f.w.AddDeed("Alice Home", alice, true, "")
	c := f.found(alice, "Acme")
	f.hire(c, bob)
	f.w.AddDeed("Farm", c.LegalPerson(), false, "")

	s, err := f.e.Summary("acme")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, want := range []string{
		"CEO: alice\n",
		"Employees: bob\n",
		"Finances: Acme Company Account\n",
		"HQ: Acme HQ (0/8 plots)\n",
		"Property: Farm\n",
		"Citizenship: None.",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %q:\n%s", want, s)
		}
	}

	if got := f.e.List(); got != "Acme managed by alice with HQ at Acme HQ (2 employees)" {
		t.Fatalf("list = %q", got)
	}
	if got, _ := f.e.HQStatus("Acme"); got != "Acme currently has Acme HQ as it's HQ." {
		t.Fatalf("hq status = %q", got)
	}
	if got, _ := f.e.CitizenshipStatus("Acme"); got != "Acme is currently not a citizen of any settlement." {
		t.Fatalf("citizenship status = %q", got)
	}
	_, err = f.e.Summary("Nope")
	wantErr(t, err, ErrNotFound)
}

func TestStatus_InvitesText(t *testing.T) {
	f := newFixture(t)
	alice, carol, dave := f.user("alice"), f.user("carol"), f.user("dave")
	f.found(alice, "Acme")
	f.found(carol, "Beta")

	if got := f.e.InvitesText(dave); got != "You have no pending invites" {
		t.Fatalf("no invites = %q", got)
	}
	for _, inv := range []struct{ company, ceo string }{{"Acme", "alice"}, {"Beta", "carol"}} {
		ceo := alice
		if inv.ceo == "carol" {
			ceo = carol
		}
		if err := f.e.Invite(inv.company, ceo, dave); err != nil {
			t.Fatalf("invite: %v", err)
		}
	}
	want := "You have invites from the following companies:\nAcme managed by alice\nBeta managed by carol"
	if got := f.e.InvitesText(dave); got != want {
		t.Fatalf("invites = %q", got)
	}
	if got := f.e.InvitesText(alice); got != "You are an employee of Acme..." {
		t.Fatalf("employee = %q", got)
	}
}
