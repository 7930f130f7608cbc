package memhost

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"companies.ai/internal/sim/host"
)

type Notice struct {
	User     host.UserID
	Category string
	Msg      string
}

type World struct {
	log       zerolog.Logger
	basePlots int

	mu          sync.Mutex
	users       map[host.UserID]*host.User
	deeds       map[host.DeedID]*host.Deed
	deedRegion  map[host.DeedID]host.SettlementID
	accounts    map[host.AccountID]*host.Account
	currencies  map[host.CurrencyID]*host.Currency
	settlements map[host.SettlementID]*host.Settlement
	storages    map[host.StorageID]*host.VoidStorage
	reputation  map[host.UserID][]host.ReputationEntry
	inbox       map[host.UserID][]Notice
	broadcasts  []Notice
	actionLog   []host.Action

	hooksMu      sync.RWMutex
	interceptors []host.Interceptor
	listeners    []host.Listener
	overriders   []host.AuthOverrider
	notifiers    host.Notifiers

	bus *Bus
}

var _ host.Host = (*World)(nil)

func New(basePlots int, log zerolog.Logger) *World {
	if basePlots <= 0 {
		basePlots = 4
	}
	return &World{
		log:         log,
		basePlots:   basePlots,
		users:       map[host.UserID]*host.User{},
		deeds:       map[host.DeedID]*host.Deed{},
		deedRegion:  map[host.DeedID]host.SettlementID{},
		accounts:    map[host.AccountID]*host.Account{},
		currencies:  map[host.CurrencyID]*host.Currency{},
		settlements: map[host.SettlementID]*host.Settlement{},
		storages:    map[host.StorageID]*host.VoidStorage{},
		reputation:  map[host.UserID][]host.ReputationEntry{},
		inbox:       map[host.UserID][]Notice{},
		bus:         newBus(),
	}
}

func (w *World) Bus() *Bus { return w.bus }

func (w *World) Subscribe(s host.Subscriber) { w.bus.Subscribe(s) }

// Flush delivers every queued event and deferred commit.
func (w *World) Flush() int { return w.bus.Flush() }

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func uniqueName(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		n := base + " " + strconv.Itoa(i)
		if !taken(n) {
			return n
		}
	}
}

func copyUsers(in []host.UserID) []host.UserID {
	if len(in) == 0 {
		return nil
	}
	return append([]host.UserID(nil), in...)
}

func addUnique(list []host.UserID, users ...host.UserID) []host.UserID {
	for _, u := range users {
		found := false
		for _, x := range list {
			if x == u {
				found = true
				break
			}
		}
		if !found {
			list = append(list, u)
		}
	}
	return list
}

func removeUser(list []host.UserID, u host.UserID) []host.UserID {
	out := list[:0]
	for _, x := range list {
		if x != u {
			out = append(out, x)
		}
	}
	return out
}

func sortedUsers(in []host.UserID) []host.UserID {
	out := copyUsers(in)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ---- Users ----

// AddUser registers a player with a personal account.
func (w *World) AddUser(name string) host.User {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addUserLocked(name, false)
}

func (w *World) addUserLocked(name string, synthetic bool) host.User {
	u := &host.User{ID: host.UserID(newID("U")), Name: name, Synthetic: synthetic}
	w.users[u.ID] = u
	acc := &host.Account{
		ID:       host.AccountID(newID("A")),
		Name:     name,
		Kind:     host.AccountPersonal,
		Owner:    u.ID,
		Managers: []host.UserID{u.ID},
		Holdings: map[host.CurrencyID]float64{},
	}
	w.accounts[acc.ID] = acc
	return *u
}

func (w *World) User(id host.UserID) (host.User, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	u, ok := w.users[id]
	if !ok {
		return host.User{}, false
	}
	return *u, true
}

func (w *World) UserByName(name string) (host.User, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, u := range w.users {
		if strings.EqualFold(u.Name, name) {
			return *u, true
		}
	}
	return host.User{}, false
}

func (w *World) userNameTakenLocked(name string) bool {
	for _, u := range w.users {
		if strings.EqualFold(u.Name, name) {
			return true
		}
	}
	return false
}

func (w *World) UniqueUserName(base string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return uniqueName(base, w.userNameTakenLocked)
}

func (w *World) CreateSynthetic(name string) (host.User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.userNameTakenLocked(name) {
		return host.User{}, fmt.Errorf("user name %q taken", name)
	}
	return w.addUserLocked(name, true), nil
}

func (w *World) SetHomestead(id host.UserID, deed host.DeedID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	u, ok := w.users[id]
	if !ok {
		return fmt.Errorf("unknown user %s", id)
	}
	u.HomesteadDeed = deed
	return nil
}

// SetDirectCitizenship writes the cached settlement only. Rosters are
// changed through AddToRoster and Leave.
func (w *World) SetDirectCitizenship(id host.UserID, s host.SettlementID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	u, ok := w.users[id]
	if !ok {
		return fmt.Errorf("unknown user %s", id)
	}
	w.setCitizenshipCacheLocked(u, s)
	return nil
}

func (w *World) setCitizenshipCacheLocked(u *host.User, s host.SettlementID) {
	if u.DirectCitizenship == s {
		return
	}
	before := u.DirectCitizenship
	u.DirectCitizenship = s
	w.bus.publish(host.CitizenshipChanged{User: u.ID, Before: before, After: s})
}

func (w *World) Login(id host.UserID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if u, ok := w.users[id]; ok {
		u.Online = true
	}
}

func (w *World) Logout(id host.UserID) {
	w.mu.Lock()
	u, ok := w.users[id]
	if ok {
		u.Online = false
	}
	w.mu.Unlock()
	if ok {
		w.bus.publish(host.UserLoggedOut{User: id})
	}
}

// ---- Notifier ----

// AddNotifier forwards every notice to n as well as the inbox.
func (w *World) AddNotifier(n host.Notifier) {
	w.hooksMu.Lock()
	w.notifiers = append(w.notifiers, n)
	w.hooksMu.Unlock()
}

func (w *World) forwarders() host.Notifiers {
	w.hooksMu.RLock()
	defer w.hooksMu.RUnlock()
	return append(host.Notifiers(nil), w.notifiers...)
}

func (w *World) Notify(u host.UserID, category, msg string) {
	w.mu.Lock()
	w.inbox[u] = append(w.inbox[u], Notice{User: u, Category: category, Msg: msg})
	w.mu.Unlock()
	w.forwarders().Notify(u, category, msg)
}

func (w *World) Broadcast(category, msg string) {
	w.mu.Lock()
	w.broadcasts = append(w.broadcasts, Notice{Category: category, Msg: msg})
	w.mu.Unlock()
	w.forwarders().Broadcast(category, msg)
}

func (w *World) Inbox(u host.UserID) []Notice {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Notice(nil), w.inbox[u]...)
}

func (w *World) Broadcasts() []Notice {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Notice(nil), w.broadcasts...)
}

// ---- Reputation ----

func (w *World) Entries(u host.UserID) []host.ReputationEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]host.ReputationEntry(nil), w.reputation[u]...)
}

// SetSource replaces the entry for source.
func (w *World) SetSource(u host.UserID, source string, amount float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.users[u]; !ok {
		return fmt.Errorf("unknown user %s", u)
	}
	entries := w.reputation[u]
	for i := range entries {
		if entries[i].Source == source {
			entries[i].Amount = amount
			return nil
		}
	}
	w.reputation[u] = append(entries, host.ReputationEntry{Source: source, Amount: amount})
	return nil
}

// ---- Void storages ----

func (w *World) AddVoidStorage(name string, canAccess ...host.UserID) host.VoidStorage {
	w.mu.Lock()
	vs := &host.VoidStorage{ID: host.StorageID(newID("V")), Name: name, CanAccess: copyUsers(canAccess)}
	w.storages[vs.ID] = vs
	out := *vs
	out.CanAccess = copyUsers(vs.CanAccess)
	w.mu.Unlock()
	w.bus.publish(host.VoidStorageAdded{Storage: vs.ID})
	return out
}

func (w *World) Storages() []host.VoidStorage {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]host.VoidStorage, 0, len(w.storages))
	for _, vs := range w.storages {
		c := *vs
		c.CanAccess = copyUsers(vs.CanAccess)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) GrantAccess(id host.StorageID, users []host.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	vs, ok := w.storages[id]
	if !ok {
		return fmt.Errorf("unknown void storage %s", id)
	}
	vs.CanAccess = addUnique(vs.CanAccess, users...)
	return nil
}

// ActionLog returns every committed action in order.
func (w *World) ActionLog() []host.Action {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]host.Action(nil), w.actionLog...)
}
