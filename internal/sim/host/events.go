package host

// Event is a notification raised by the host after its state changed.
type Event interface {
	EventName() string
}

type DeedOwnerChanged struct {
	Deed   DeedID
	Before Alias
	After  Alias
}

// DeedDestroyed carries the deed as it was just before destruction.
type DeedDestroyed struct {
	Deed      Deed
	Performer UserID
}

type VoidStorageAdded struct {
	Storage StorageID
}

type UserLoggedOut struct {
	User UserID
}

type BalanceChanged struct {
	Account AccountID
}

type PermissionsChanged struct {
	Account AccountID
}

type CitizenshipChanged struct {
	User   UserID
	Before SettlementID
	After  SettlementID
}

func (DeedOwnerChanged) EventName() string   { return "DeedOwnerChanged" }
func (DeedDestroyed) EventName() string      { return "DeedDestroyed" }
func (VoidStorageAdded) EventName() string   { return "VoidStorageAdded" }
func (UserLoggedOut) EventName() string      { return "UserLoggedOut" }
func (BalanceChanged) EventName() string     { return "BalanceChanged" }
func (PermissionsChanged) EventName() string { return "PermissionsChanged" }
func (CitizenshipChanged) EventName() string { return "CitizenshipChanged" }

type Subscriber interface {
	HandleEvent(ev Event)
}

// Events is the host event feed. Delivery is queued and at-most-once;
// handlers never run inside the call that raised the event.
type Events interface {
	Subscribe(s Subscriber)
}
