package companies

import (
	"strings"
	"testing"

	"companies.ai/internal/sim/host"
	"companies.ai/internal/sim/tuning"
)

func TestValidateName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"Acme", true},
		{"_acme", true},
		{"Acme Co.", true},
		{"Bob's Tools", true},
		{"Café 42", true},
		{"ab", false},
		{"'Acme", false},
		{" Acme", false},
		{"Ac!me", false},
		{"Acme/Beta", false},
		{strings.Repeat("x", 51), false},
	}
	for _, tc := range cases {
		err := ValidateName(tc.name, 3, 50)
		if tc.ok && err != nil {
			t.Fatalf("%q: unexpected error %v", tc.name, err)
		}
		if !tc.ok {
			wantErr(t, err, ErrInvalidName)
		}
	}
	if err := ValidateName("ab", 3, 50); err.Error() != "Company name is too short, must be at least 3 characters long" {
		t.Fatalf("short message = %q", err)
	}
	// Length counts runes, not bytes.
	if err := ValidateName("ééé", 3, 3); err != nil {
		t.Fatalf("rune length: %v", err)
	}
}

func TestLifecycle_FoundCreatesDelegateResources(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	c := f.found(alice, "  Acme  ")

	if c.Name() != "Acme" || c.CEO() != alice {
		t.Fatalf("company = %q ceo %s", c.Name(), c.CEO())
	}
	lp, ok := f.w.User(c.LegalPerson())
	if !ok || lp.Name != "Acme Legal Person" || !lp.Synthetic {
		t.Fatalf("legal person = %+v", lp)
	}
	acc := f.account(c)
	if acc.Name != "Acme Company Account" || acc.Kind != host.AccountShared {
		t.Fatalf("account = %+v", acc)
	}
	if !host.SameUsers(acc.Managers, []host.UserID{lp.ID}) || !host.SameUsers(acc.Users, []host.UserID{alice}) {
		t.Fatalf("account permissions = %v / %v", acc.Managers, acc.Users)
	}
	cur, ok := f.w.Currency(c.Record().Currency)
	if !ok || cur.Name != "Acme Shares" || cur.Creator != lp.ID {
		t.Fatalf("currency = %+v", cur)
	}
	if f.e.FromAccount(acc) != c || f.e.FromLegalPerson(lp.ID) != c || f.e.EmployerOf(alice) != c {
		t.Fatalf("indexes not bound")
	}
	b := f.w.Broadcasts()
	if len(b) == 0 || b[len(b)-1].Msg != "alice has founded the company Acme!" {
		t.Fatalf("broadcasts = %+v", b)
	}
	if a := f.audit.actions(); len(a) == 0 || a[0] != "found" {
		t.Fatalf("audit = %v", a)
	}
}

func TestLifecycle_DryRunRejections(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	c := f.found(alice, "Acme")
	f.user("Beta Legal Person")

	_, err := f.e.DryRun(alice, "Other")
	wantErr(t, err, ErrAlreadyEmployed)
	if err.Error() != "Couldn't found a company as you're already a member of Acme" {
		t.Fatalf("message = %q", err)
	}
	_, err = f.e.DryRun(c.LegalPerson(), "Other")
	wantErr(t, err, ErrInvalidTarget)
	_, err = f.e.DryRun("ghost", "Other")
	wantErr(t, err, ErrNotFound)

	for _, name := range []string{"acme", "ACME ", "Acme Legal Person", "Beta"} {
		_, err := f.e.DryRun(bob, name)
		wantErr(t, err, ErrNameTaken)
	}
	_, err = f.e.DryRun(bob, "x")
	wantErr(t, err, ErrInvalidName)
}

func TestLifecycle_CreationRace(t *testing.T) {
	f := newFixture(t)
	bob, carol := f.user("bob"), f.user("carol")

	pb, err := f.e.DryRun(bob, "Gamma")
	if err != nil {
		t.Fatalf("dry run bob: %v", err)
	}
	pc, err := f.e.DryRun(carol, "Gamma")
	if err != nil {
		t.Fatalf("dry run carol: %v", err)
	}
	if _, err := f.e.Commit(bob, "Gamma", pb); err != nil {
		t.Fatalf("commit bob: %v", err)
	}
	_, err = f.e.Commit(carol, "Gamma", pc)
	wantErr(t, err, ErrStateChanged)
	if !strings.HasPrefix(err.Error(), "Something changed since you tried to create the company. Please try again.\n") ||
		!strings.Contains(err.Error(), "already exists") {
		t.Fatalf("message = %q", err)
	}
	if n := len(f.e.Companies()); n != 1 {
		t.Fatalf("companies = %d, want 1", n)
	}
	if f.e.EmployerOf(carol) != nil {
		t.Fatalf("carol employed after a failed commit")
	}
}

func TestLifecycle_CommitAfterJoiningElsewhere(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	other := f.found(alice, "Other")

	p, err := f.e.DryRun(bob, "Gamma")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	f.hire(other, bob)

	_, err = f.e.Commit(bob, "Gamma", p)
	wantErr(t, err, ErrStateChanged)
	if f.e.Company("Gamma") != nil {
		t.Fatalf("company created from a stale proposal")
	}
	if _, ok := f.w.UserByName("Gamma Legal Person"); ok {
		t.Fatalf("delegate created from a stale proposal")
	}
	if got := f.e.EmployerOf(bob); got != other {
		t.Fatalf("employer = %v, want Other", got)
	}
	if n := len(f.e.Companies()); n != 1 {
		t.Fatalf("companies = %d, want 1", n)
	}
}

func TestLifecycle_ProposalMismatch(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	p, err := f.e.DryRun(alice, "Acme")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	f.w.AddDeed("Alice Home", alice, true, "")

	_, err = f.e.Commit(alice, "Acme", p)
	wantErr(t, err, ErrStateChanged)
	if f.e.Company("Acme") != nil {
		t.Fatalf("company created from a stale proposal")
	}
	if _, ok := f.w.UserByName("Acme Legal Person"); ok {
		t.Fatalf("delegate created from a stale proposal")
	}
}

func TestLifecycle_ProposalEqualIgnoresDeedOrder(t *testing.T) {
	a := Proposal{CEO: "u1", Name: "Acme", TransferDeeds: []host.DeedID{"d1", "d2"}}
	b := Proposal{CEO: "u1", Name: "Acme", TransferDeeds: []host.DeedID{"d2", "d1"}}
	if !a.Equal(b) {
		t.Fatalf("order should not matter")
	}
	b.JoinSettlement = "s1"
	if a.Equal(b) {
		t.Fatalf("settlement difference ignored")
	}
}

func TestLifecycle_DescribeAndApply(t *testing.T) {
	f := newFixture(t)
	alice, mayor := f.user("alice"), f.user("mayor")
	town := f.w.AddSettlement("Town", mayor, true)
	if err := f.w.AddToRoster(town.ID, alice, true); err != nil {
		t.Fatalf("roster: %v", err)
	}
	f.w.AddDeed("Alice Home", alice, true, "")
	f.w.Flush()

	p, err := f.e.DryRun(alice, "Acme")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	want := "This will found a company named 'Acme' with alice as the CEO.\n" +
		"The following deeds will be transferred to the company upon founding: Alice Home\n" +
		"The company will apply to join Town upon founding."
	if got := f.e.Describe(p); got != want {
		t.Fatalf("describe:\n%s\nwant:\n%s", got, want)
	}

	bare := Proposal{CEO: alice, Name: "Acme"}
	if got := f.e.Describe(bare); !strings.HasSuffix(got, "No deeds will be transferred to the company upon founding.\nThe company will not be considered a citizen of any settlement upon founding.") {
		t.Fatalf("bare describe = %q", got)
	}
}

func TestLifecycle_FoundingAppliesToSettlement(t *testing.T) {
	f := newFixture(t)
	alice, mayor := f.user("alice"), f.user("mayor")
	town := f.w.AddSettlement("Town", mayor, true)
	if err := f.w.AddToRoster(town.ID, alice, true); err != nil {
		t.Fatalf("roster: %v", err)
	}
	f.w.Flush()
	c := f.found(alice, "Acme")

	s, _ := f.w.Settlement(town.ID)
	if !host.SameUsers(s.Applicants, []host.UserID{c.LegalPerson()}) {
		t.Fatalf("applicants = %v", s.Applicants)
	}
	if !hasNotice(f, mayor, "mail", "Acme has applied to be a Citizen of Town. You may approve or reject this application.") {
		t.Fatalf("approver not mailed: %+v", f.w.Inbox(mayor))
	}
}

func TestLifecycle_LimitsOffKeepsHomestead(t *testing.T) {
	f := newFixture(t, func(t *tuning.Tuning) { t.PropertyLimitsEnabled = false })
	alice := f.user("alice")
	home := f.w.AddDeed("Alice Home", alice, true, "")
	p, err := f.e.DryRun(alice, "Acme")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(p.TransferDeeds) != 0 || p.JoinSettlement != "" {
		t.Fatalf("proposal = %+v", p)
	}
	f.found(alice, "Acme")
	if d := f.deed(home.ID); !d.Owners.Contains(alice) {
		t.Fatalf("homestead moved with limits off: %v", d.Owners)
	}
}
