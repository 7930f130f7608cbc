package memhost

import (
	"fmt"
	"sort"
	"strings"

	"companies.ai/internal/sim/host"
)

func cloneDeed(d *host.Deed) host.Deed {
	c := *d
	c.Owners = append(host.Alias(nil), d.Owners...)
	c.Accessors = copyUsers(d.Accessors)
	c.ResidencyInvites = copyUsers(d.ResidencyInvites)
	return c
}

// AddDeed registers a deed located in region (may be empty). A homestead
// deed becomes its owner's homestead.
func (w *World) AddDeed(name string, owner host.UserID, homestead bool, region host.SettlementID) host.Deed {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addDeedLocked(name, owner, homestead, region)
}

func (w *World) addDeedLocked(name string, owner host.UserID, homestead bool, region host.SettlementID) host.Deed {
	d := &host.Deed{
		ID:        host.DeedID(newID("D")),
		Name:      uniqueName(name, w.deedNameTakenLocked),
		Owners:    host.Single(owner),
		Creator:   owner,
		Homestead: homestead,
	}
	d.AllowedPlots = w.plotsForLocked(d)
	w.deeds[d.ID] = d
	w.deedRegion[d.ID] = region
	if homestead {
		if u, ok := w.users[owner]; ok && u.HomesteadDeed == "" {
			u.HomesteadDeed = d.ID
		}
	}
	return cloneDeed(d)
}

// AddClaimPapers adds extra claim papers to a deed's plot inventory.
func (w *World) AddClaimPapers(id host.DeedID, n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.deeds[id]
	if !ok {
		return fmt.Errorf("unknown deed %s", id)
	}
	d.ClaimPapers += n
	return nil
}

// DestroyDeed raises DeedDestroyed; the deed is purged once the event has
// been delivered.
func (w *World) DestroyDeed(id host.DeedID, performer host.UserID) error {
	w.mu.Lock()
	d, ok := w.deeds[id]
	if !ok || d.Destroyed {
		w.mu.Unlock()
		return fmt.Errorf("unknown deed %s", id)
	}
	d.Destroyed = true
	snap := cloneDeed(d)
	for _, u := range w.users {
		if u.HomesteadDeed == id && !snap.Owners.Contains(u.ID) {
			u.HomesteadDeed = ""
		}
	}
	w.mu.Unlock()
	w.bus.publish(host.DeedDestroyed{Deed: snap, Performer: performer})
	w.bus.later(func() { w.purgeDeed(id) })
	return nil
}

func (w *World) purgeDeed(id host.DeedID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.deeds, id)
	delete(w.deedRegion, id)
	for _, u := range w.users {
		if u.HomesteadDeed == id {
			u.HomesteadDeed = ""
		}
	}
}

func (w *World) Deed(id host.DeedID) (host.Deed, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.deeds[id]
	if !ok {
		return host.Deed{}, false
	}
	return cloneDeed(d), true
}

// Deeds lists live deeds.
func (w *World) Deeds() []host.Deed {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]host.Deed, 0, len(w.deeds))
	for _, d := range w.deeds {
		if d.Destroyed {
			continue
		}
		out = append(out, cloneDeed(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) deedLocked(id host.DeedID) (*host.Deed, error) {
	d, ok := w.deeds[id]
	if !ok {
		return nil, fmt.Errorf("unknown deed %s", id)
	}
	return d, nil
}

func (w *World) SetOwner(id host.DeedID, owners host.Alias) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setOwnerLocked(id, owners)
}

func (w *World) setOwnerLocked(id host.DeedID, owners host.Alias) error {
	d, err := w.deedLocked(id)
	if err != nil {
		return err
	}
	if d.Destroyed {
		return fmt.Errorf("deed %s is destroyed", id)
	}
	if host.SameUsers(d.Owners, owners) {
		return nil
	}
	before := d.Owners
	d.Owners = append(host.Alias(nil), owners...)
	w.bus.publish(host.DeedOwnerChanged{Deed: id, Before: before, After: append(host.Alias(nil), owners...)})
	return nil
}

func (w *World) SetAccessors(id host.DeedID, users []host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.deedLocked(id)
	if err != nil {
		return err
	}
	d.Accessors = copyUsers(users)
	return nil
}

func (w *World) SetResidencyInvites(id host.DeedID, users []host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.deedLocked(id)
	if err != nil {
		return err
	}
	d.ResidencyInvites = copyUsers(users)
	return nil
}

func (w *World) SetAllowPlotsUnclaiming(id host.DeedID, allow bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.deedLocked(id)
	if err != nil {
		return err
	}
	d.AllowPlotsUnclaiming = allow
	return nil
}

func (w *World) SetPlotsOverride(id host.DeedID, plots int) error {
	if plots < 0 {
		return fmt.Errorf("plots override must be >= 0")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.deedLocked(id)
	if err != nil {
		return err
	}
	d.PlotsOverride = plots
	return nil
}

func (w *World) plotsForLocked(d *host.Deed) int {
	base := w.basePlots
	if d.PlotsOverride > 0 {
		base = d.PlotsOverride
	}
	return d.ClaimPapers + base
}

func (w *World) RecalculatePlots(id host.DeedID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.deedLocked(id)
	if err != nil {
		return err
	}
	d.AllowedPlots = w.plotsForLocked(d)
	if d.ClaimedPlots > d.AllowedPlots {
		d.ClaimedPlots = d.AllowedPlots
	}
	return nil
}

func (w *World) deedNameTakenLocked(name string) bool {
	for _, d := range w.deeds {
		if strings.EqualFold(d.Name, name) {
			return true
		}
	}
	return false
}

func (w *World) Rename(id host.DeedID, name string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.deedLocked(id)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(d.Name, name) {
		return d.Name, nil
	}
	d.Name = uniqueName(name, w.deedNameTakenLocked)
	return d.Name, nil
}

func (w *World) SetCreator(id host.DeedID, creator host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.deedLocked(id)
	if err != nil {
		return err
	}
	d.Creator = creator
	return nil
}

// UpdateInfluencingSettlement re-derives the cached owning settlement from
// the deed's location.
func (w *World) UpdateInfluencingSettlement(id host.DeedID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.deedLocked(id)
	if err != nil {
		return err
	}
	region := w.deedRegion[id]
	d.InfluencingSettlement = region
	d.OwningSettlement = region
	return nil
}

func (w *World) BaseHomesteadPlots() int { return w.basePlots }
