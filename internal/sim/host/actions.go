package host

// Action is a validated game action flowing through the host pipeline.
type Action interface {
	ActionName() string
}

type MoneyTransfer struct {
	Citizen  UserID
	Source   AccountID
	Target   AccountID
	Currency CurrencyID
	Amount   float64
}

type CompanyExpense struct {
	Source   AccountID
	Target   AccountID
	Currency CurrencyID
	Amount   float64
	Sender   UserID
}

type CompanyIncome struct {
	Source   AccountID
	Target   AccountID
	Currency CurrencyID
	Amount   float64
	Receiver UserID
}

type CitizenJoinCompany struct {
	Citizen     UserID
	LegalPerson UserID
}

type CitizenLeaveCompany struct {
	Citizen     UserID
	LegalPerson UserID
	Fired       bool
}

type EmployeeWealthChanged struct {
	Employee    UserID
	LegalPerson UserID
	Account     AccountID
}

type ReputationTarget int

const (
	ReputationToUser ReputationTarget = iota
	ReputationToPicture
)

type ReputationTransfer struct {
	Sender   UserID
	Receiver UserID
	Target   ReputationTarget
	Amount   float64
}

type TradeAction struct {
	Citizen   UserID
	ShopOwner Alias
	Selling   bool
	Item      string
	Count     int
	Store     string
}

type PropertyTransfer struct {
	Citizen  UserID
	Deeds    []DeedID
	NewOwner Alias
}

type ClaimOrUnclaim struct {
	Citizen       UserID
	Deed          DeedID
	PreviousOwner Alias
	Claim         bool
}

type StartHomestead struct {
	Citizen UserID
	Name    string
}

type PlaceOrPickUp struct {
	Citizen    UserID
	Item       string
	ClaimStake bool
	PickUp     bool
	// Deed is the deed under the action location, if any.
	Deed DeedID
}

func (MoneyTransfer) ActionName() string         { return "MoneyTransfer" }
func (CompanyExpense) ActionName() string        { return "CompanyExpense" }
func (CompanyIncome) ActionName() string         { return "CompanyIncome" }
func (CitizenJoinCompany) ActionName() string    { return "CitizenJoinCompany" }
func (CitizenLeaveCompany) ActionName() string   { return "CitizenLeaveCompany" }
func (EmployeeWealthChanged) ActionName() string { return "EmployeeWealthChanged" }
func (ReputationTransfer) ActionName() string    { return "ReputationTransfer" }
func (TradeAction) ActionName() string           { return "TradeAction" }
func (PropertyTransfer) ActionName() string      { return "PropertyTransfer" }
func (ClaimOrUnclaim) ActionName() string        { return "ClaimOrUnclaim" }
func (StartHomestead) ActionName() string        { return "StartHomestead" }
func (PlaceOrPickUp) ActionName() string         { return "PlaceOrPickUp" }

// PostResult is the outcome of running an action through the pipeline.
// Interceptors may fail it or attach effects that run after it commits.
type PostResult struct {
	Success     bool
	Message     string
	PostEffects []func()
}

func Succeeded() PostResult { return PostResult{Success: true} }

func (r *PostResult) Fail(msg string) {
	r.Success = false
	if r.Message == "" {
		r.Message = msg
		return
	}
	r.Message += "\n" + msg
}

func (r *PostResult) AddPostEffect(fn func()) {
	if fn == nil {
		return
	}
	r.PostEffects = append(r.PostEffects, fn)
}

// Interceptor inspects actions before they commit.
type Interceptor interface {
	Intercept(a Action, r *PostResult)
}

// Listener observes committed actions.
type Listener interface {
	ActionPerformed(a Action)
}

// AuthOverrider may grant an actor authority over property it does not own.
// The returned alias is the owner the actor acts on behalf of.
type AuthOverrider interface {
	OverrideAuth(actor UserID, a Action) (Alias, bool)
}

type Actions interface {
	Perform(a Action) PostResult
	AddInterceptor(i Interceptor)
	AddListener(l Listener)
	AddAuthOverrider(o AuthOverrider)
}
