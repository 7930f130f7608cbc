package companies

import (
	"testing"

	"companies.ai/internal/sim/host"
)

func TestRecords_RestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user("alice"), f.user("bob"), f.user("carol")
	c := f.found(alice, "Acme")
	f.hire(c, bob)
	if err := f.e.Invite("Acme", alice, carol); err != nil {
		t.Fatalf("invite: %v", err)
	}
	records := f.e.Records()

	e2, err := New(Deps{Host: f.w, Switches: f.sw, Sched: f.sched, Log: f.e.log})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := e2.Restore(records); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got := e2.Company("acme")
	if got == nil {
		t.Fatalf("Acme not restored")
	}
	if got.CEO() != alice || !got.IsEmployee(bob) || !got.IsInvited(carol) {
		t.Fatalf("restored roster: ceo %s bob %v carol %v", got.CEO(), got.IsEmployee(bob), got.IsInvited(carol))
	}
	if e2.EmployerOf(bob) != got || e2.FromLegalPerson(c.LegalPerson()) != got {
		t.Fatalf("indexes not rebuilt")
	}
	if acc, _ := f.w.Account(c.Record().Account); e2.FromAccount(acc) != got {
		t.Fatalf("account index not rebuilt")
	}
	if r := got.Record(); r.Name != "Acme" || r.CreatedAt != records[0].CreatedAt {
		t.Fatalf("record = %+v", r)
	}
}

func TestRecords_RestoreDropsConflicts(t *testing.T) {
	f := newFixture(t)
	old := Record{Name: "Acme", CEO: "u1", Members: []host.UserID{"u2"}, LegalPerson: "lp1", Account: "a1"}
	dup := Record{Name: "acme", CEO: "u3", LegalPerson: "lp2", Account: "a2"}
	poacher := Record{Name: "Beta", CEO: "u4", Members: []host.UserID{"u2"}, Invites: []host.UserID{"u2", "u5"}, LegalPerson: "lp3", Account: "a3"}
	broken := Record{Name: "Gamma", CEO: "u6"}
	old.CreatedAt = old.CreatedAt.AddDate(2000, 0, 0)
	dup.CreatedAt = old.CreatedAt.AddDate(0, 0, 1)
	poacher.CreatedAt = old.CreatedAt.AddDate(0, 0, 2)

	err := f.e.Restore([]Record{poacher, dup, broken, old})
	if err == nil {
		t.Fatalf("expected skipped records to be reported")
	}
	if len(f.e.Companies()) != 2 {
		t.Fatalf("companies = %d, want 2", len(f.e.Companies()))
	}
	beta := f.e.Company("Beta")
	if beta.IsEmployee("u2") || !beta.IsInvited("u5") || !beta.IsInvited("u2") {
		t.Fatalf("beta roster: u2 member %v, u5 invited %v", beta.IsEmployee("u2"), beta.IsInvited("u5"))
	}
	if f.e.EmployerOf("u2") != f.e.Company("Acme") {
		t.Fatalf("u2 should stay with the older company")
	}
	if f.e.EmployerOf("u3") != nil {
		t.Fatalf("ceo of a skipped record is employed")
	}
}

func TestRecords_RestoreKeepsCompanyWhoseCEOIsTaken(t *testing.T) {
	f := newFixture(t)
	first := Record{Name: "Acme", CEO: "u1", LegalPerson: "lp1", Account: "a1"}
	second := Record{Name: "Beta", CEO: "u1", Members: []host.UserID{"u2"}, LegalPerson: "lp2", Account: "a2"}
	first.CreatedAt = first.CreatedAt.AddDate(2000, 0, 0)
	second.CreatedAt = first.CreatedAt.AddDate(0, 0, 1)

	if err := f.e.Restore([]Record{second, first}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	beta := f.e.Company("Beta")
	if beta == nil {
		t.Fatalf("Beta dropped")
	}
	if beta.CEO() != "" || !beta.IsEmployee("u2") {
		t.Fatalf("beta: ceo %q, u2 member %v", beta.CEO(), beta.IsEmployee("u2"))
	}
	if f.e.EmployerOf("u1") != f.e.Company("Acme") {
		t.Fatalf("u1 should stay ceo of the older company")
	}
	if f.e.FromLegalPerson("lp2") != beta {
		t.Fatalf("delegate index not rebuilt for Beta")
	}
}
