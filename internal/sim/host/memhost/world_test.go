package memhost

import (
	"testing"

	"github.com/rs/zerolog"

	"companies.ai/internal/sim/host"
)

type recorder struct{ events []host.Event }

func (r *recorder) HandleEvent(ev host.Event) { r.events = append(r.events, ev) }

func TestBus_QueuesUntilFlush(t *testing.T) {
	w := New(4, zerolog.Nop())
	rec := &recorder{}
	w.Subscribe(rec)
	u := w.AddUser("alice")
	d := w.AddDeed("Farm", u.ID, false, "")
	other := w.AddUser("bob")

	if err := w.SetOwner(d.ID, host.Single(other.ID)); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("delivered before flush")
	}
	// Same owners again raises nothing.
	if err := w.SetOwner(d.ID, host.Single(other.ID)); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	if n := w.Flush(); n != 1 {
		t.Fatalf("flushed %d items, want 1", n)
	}
	ev, ok := rec.events[0].(host.DeedOwnerChanged)
	if !ok || !ev.Before.Contains(u.ID) || !ev.After.Contains(other.ID) {
		t.Fatalf("event = %+v", rec.events[0])
	}
}

func TestWorld_HomesteadCommitIsDeferred(t *testing.T) {
	w := New(4, zerolog.Nop())
	u := w.AddUser("alice")
	if r := w.Perform(host.StartHomestead{Citizen: u.ID}); !r.Success {
		t.Fatalf("start: %s", r.Message)
	}
	if got, _ := w.User(u.ID); got.HomesteadDeed != "" {
		t.Fatalf("homestead committed inline")
	}
	w.Flush()
	got, _ := w.User(u.ID)
	d, ok := w.Deed(got.HomesteadDeed)
	if !ok || d.Name != "alice's Homestead" || d.AllowedPlots != 4 {
		t.Fatalf("homestead = %+v", d)
	}
	if r := w.Perform(host.StartHomestead{Citizen: u.ID}); r.Success {
		t.Fatalf("second homestead allowed")
	}
}

func TestWorld_PlotsOverride(t *testing.T) {
	w := New(4, zerolog.Nop())
	u := w.AddUser("alice")
	d := w.AddDeed("Home", u.ID, true, "")
	if err := w.SetPlotsOverride(d.ID, 12); err != nil {
		t.Fatalf("override: %v", err)
	}
	if got, _ := w.Deed(d.ID); got.AllowedPlots != 4 {
		t.Fatalf("override applied before recalculation: %d", got.AllowedPlots)
	}
	if err := w.RecalculatePlots(d.ID); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if got, _ := w.Deed(d.ID); got.AllowedPlots != 12 {
		t.Fatalf("allowed plots = %d, want 12", got.AllowedPlots)
	}
}

func TestWorld_CitizenshipCacheAndRoster(t *testing.T) {
	w := New(4, zerolog.Nop())
	rec := &recorder{}
	w.Subscribe(rec)
	u := w.AddUser("alice")
	s := w.AddSettlement("Town", "", true)

	if err := w.AddToRoster(s.ID, u.ID, true); err != nil {
		t.Fatalf("roster: %v", err)
	}
	if got, _ := w.User(u.ID); got.DirectCitizenship != s.ID || !w.HasCitizen(s.ID, u.ID) {
		t.Fatalf("citizenship not recorded")
	}
	w.RemoveFromRosterOnly(s.ID, u.ID)
	if got, _ := w.User(u.ID); got.DirectCitizenship != s.ID || w.HasCitizen(s.ID, u.ID) {
		t.Fatalf("roster-only removal touched the cache")
	}
	if w.CanLeave(s.ID, u.ID) {
		t.Fatalf("can leave without being on the roster")
	}
	w.Flush()
	if len(rec.events) != 1 {
		t.Fatalf("events = %d, want 1", len(rec.events))
	}
}

func TestWorld_MoneyTransferAuthorization(t *testing.T) {
	w := New(4, zerolog.Nop())
	alice, bob := w.AddUser("alice"), w.AddUser("bob")
	src, _ := w.PersonalAccount(alice.ID)
	dst, _ := w.PersonalAccount(bob.ID)
	if err := w.Deposit(src.ID, "gold", 10); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if r := w.Perform(host.MoneyTransfer{Citizen: bob.ID, Source: src.ID, Target: dst.ID, Currency: "gold", Amount: 5}); r.Success {
		t.Fatalf("bob spent alice's money")
	}
	if r := w.Perform(host.MoneyTransfer{Citizen: alice.ID, Source: src.ID, Target: dst.ID, Currency: "gold", Amount: 5}); !r.Success {
		t.Fatalf("transfer: %s", r.Message)
	}
	if got, _ := w.Account(dst.ID); got.Holdings["gold"] != 5 {
		t.Fatalf("holdings = %v", got.Holdings)
	}
}

func TestWorld_ExportImport(t *testing.T) {
	w := New(6, zerolog.Nop())
	u := w.AddUser("alice")
	w.Login(u.ID)
	town := w.AddSettlement("Town", u.ID, true)
	d := w.AddDeed("Farm", u.ID, true, town.ID)
	cur, err := w.CreateCurrency("Credits", u.ID)
	if err != nil {
		t.Fatalf("currency: %v", err)
	}
	acc, _ := w.PersonalAccount(u.ID)
	if err := w.Deposit(acc.ID, cur.ID, 12); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := w.SetSource(u.ID, "Gift", 3); err != nil {
		t.Fatalf("rep: %v", err)
	}
	st := w.Export()

	w2 := New(4, zerolog.Nop())
	if err := w2.Import(st); err != nil {
		t.Fatalf("import: %v", err)
	}
	if w2.BaseHomesteadPlots() != 6 {
		t.Fatalf("base plots = %d", w2.BaseHomesteadPlots())
	}
	got, ok := w2.User(u.ID)
	if !ok || got.Online || got.HomesteadDeed != d.ID {
		t.Fatalf("user = %+v", got)
	}
	if a, _ := w2.Account(acc.ID); a.Holdings[cur.ID] != 12 {
		t.Fatalf("holdings = %v", a.Holdings)
	}
	if dd, ok := w2.Deed(d.ID); !ok || !dd.Owners.Contains(u.ID) {
		t.Fatalf("deed = %+v", dd)
	}
	if e := w2.Entries(u.ID); len(e) != 1 || e[0].Amount != 3 {
		t.Fatalf("entries = %+v", e)
	}
	if w2.Flush() != 0 {
		t.Fatalf("import published events")
	}
	if err := w2.Import(st); err == nil {
		t.Fatalf("second import accepted")
	}
}
