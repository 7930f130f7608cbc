package companies

import (
	"testing"

	"companies.ai/internal/sim/host"
)

func TestSync_HQCapacityFollowsRoster(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user("alice"), f.user("bob"), f.user("carol")
	f.w.AddDeed("Alice Home", alice, true, "")
	c := f.found(alice, "Acme")

	hq := f.hq(c)
	if hq.Name != "Acme HQ" {
		t.Fatalf("hq name = %q", hq.Name)
	}
	if hq.AllowedPlots != 4 {
		t.Fatalf("1 member: allowed plots = %d, want 4", hq.AllowedPlots)
	}

	f.hire(c, bob)
	f.hire(c, carol)
	if got := f.hq(c).AllowedPlots; got != 12 {
		t.Fatalf("3 members: allowed plots = %d, want 12", got)
	}

	if err := f.e.Leave(bob); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := f.hq(c).AllowedPlots; got != 8 {
		t.Fatalf("2 members: allowed plots = %d, want 8", got)
	}

	n, err := f.e.RefreshHQSize("Acme")
	if err != nil || n != 8 {
		t.Fatalf("refresh hq size = %d, %v", n, err)
	}
}

func TestSync_HQCapacityWithoutLimits(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	c := f.found(alice, "Acme")
	d := f.w.AddDeed("Alice Home", alice, true, "")
	if err := f.w.SetOwner(d.ID, host.Single(c.LegalPerson())); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	f.w.Flush()
	if _, err := f.sw.Set("property_limits_enabled", "false"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	f.hire(c, bob)
	if got := f.hq(c).AllowedPlots; got != 4 {
		t.Fatalf("limits off: allowed plots = %d, want 4", got)
	}
}

func TestSync_IdempotentResync(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	f.w.AddDeed("Alice Home", alice, true, "")
	c := f.found(alice, "Acme")
	farm := f.w.AddDeed("Farm", c.LegalPerson(), false, "")
	f.hire(c, bob)

	snapshot := func() (host.Deed, host.Deed, host.Account) {
		return f.hq(c), f.deed(farm.ID), f.account(c)
	}
	if err := f.e.RefreshAuthLists("Acme"); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	hq1, farm1, acc1 := snapshot()
	if err := f.e.RefreshAuthLists("Acme"); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if n := f.w.Flush(); n != 0 {
		t.Fatalf("second refresh raised %d events", n)
	}
	hq2, farm2, acc2 := snapshot()

	members := []host.UserID{alice, bob}
	for _, pair := range []struct {
		name string
		a, b []host.UserID
	}{
		{"hq accessors", hq1.Accessors, hq2.Accessors},
		{"hq residency", hq1.ResidencyInvites, hq2.ResidencyInvites},
		{"farm accessors", farm1.Accessors, farm2.Accessors},
		{"account users", acc1.Users, acc2.Users},
	} {
		if !host.SameUsers(pair.a, members) || !host.SameUsers(pair.b, members) {
			t.Fatalf("%s: first=%v second=%v want %v", pair.name, pair.a, pair.b, members)
		}
	}
	if !host.SameUsers(acc2.Managers, []host.UserID{c.LegalPerson()}) {
		t.Fatalf("account managers = %v", acc2.Managers)
	}
	if len(farm2.ResidencyInvites) != 0 {
		t.Fatalf("non-hq deed got residency invites: %v", farm2.ResidencyInvites)
	}
	if !hq2.AllowPlotsUnclaiming {
		t.Fatalf("hq should allow plot unclaiming")
	}
}

func TestSync_PermissionsRestoredAfterExternalEdit(t *testing.T) {
	f := newFixture(t)
	alice, mallory := f.user("alice"), f.user("mallory")
	c := f.found(alice, "Acme")
	acc := f.account(c)

	if err := f.w.SetPermissions(acc.ID, []host.UserID{mallory}, nil); err != nil {
		t.Fatalf("set permissions: %v", err)
	}
	f.w.Flush()
	got := f.account(c)
	if !host.SameUsers(got.Managers, []host.UserID{c.LegalPerson()}) || !host.SameUsers(got.Users, []host.UserID{alice}) {
		t.Fatalf("permissions not restored: managers=%v users=%v", got.Managers, got.Users)
	}
}

func TestSync_VoidStorageGrantedToMembers(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	c := f.found(alice, "Acme")
	f.hire(c, bob)

	vs := f.w.AddVoidStorage("Vault", c.LegalPerson())
	f.w.Flush()
	var got host.VoidStorage
	for _, s := range f.w.Storages() {
		if s.ID == vs.ID {
			got = s
		}
	}
	for _, u := range []host.UserID{alice, bob} {
		if !host.Alias(got.CanAccess).Contains(u) {
			t.Fatalf("%s missing void storage access: %v", u, got.CanAccess)
		}
	}
}

func TestSync_CitizenshipInheritance(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	town := f.w.AddSettlement("Town", "", true)
	c := f.found(alice, "Acme")
	f.hire(c, bob)

	if err := f.e.ApplyToSettlement("Acme", alice, town.ID); err != nil {
		t.Fatalf("apply: %v", err)
	}
	f.w.Flush()
	for _, u := range []host.UserID{c.LegalPerson(), alice, bob} {
		if !f.w.HasCitizen(town.ID, u) {
			t.Fatalf("%s not a citizen of town", u)
		}
	}

	if err := f.e.LeaveSettlement("Acme", alice); err != nil {
		t.Fatalf("leave settlement: %v", err)
	}
	f.w.Flush()
	for _, u := range []host.UserID{c.LegalPerson(), alice, bob} {
		if f.w.HasCitizen(town.ID, u) {
			t.Fatalf("%s still a citizen after the company left", u)
		}
	}
}
