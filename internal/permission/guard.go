package permission

// State is the outcome class of a guard decision.
type State int

const (
	StateLoading State = iota
	StateDenied
	StateAllowed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateDenied:
		return "denied"
	case StateAllowed:
		return "allowed"
	}
	return "unknown"
}

// Reason explains a denial.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonCheckFailed     Reason = "check_failed"
	ReasonInsufficient    Reason = "insufficient_permissions"
)

// Decision is what a guarded route or component should render.
type Decision struct {
	State  State
	Reason Reason
}

func (d Decision) Allowed() bool { return d.State == StateAllowed }

// Requirement is a predicate over capabilities. A nil Requirement only
// demands that evaluation has completed.
type Requirement func(Capabilities) bool

var (
	RequireAdmin          Requirement = func(c Capabilities) bool { return c.HasAdminPermissions }
	RequireManageUsers    Requirement = func(c Capabilities) bool { return c.CanManageUsers }
	RequireViewCustomers  Requirement = func(c Capabilities) bool { return c.CanViewCustomers }
	RequireViewJobs       Requirement = func(c Capabilities) bool { return c.CanViewJobs }
	RequireViewMachines   Requirement = func(c Capabilities) bool { return c.CanViewMachines }
	RequireViewPayments   Requirement = func(c Capabilities) bool { return c.CanViewPayments }
	RequireCreateJobs     Requirement = func(c Capabilities) bool { return c.CanCreateJobs }
	RequireModifyMachines Requirement = func(c Capabilities) bool { return c.CanModifyMachines }
	RequireRecordPayments Requirement = func(c Capabilities) bool { return c.CanRecordPayments }
	RequireAuthenticated  Requirement = func(c Capabilities) bool { return c.Authenticated }
)

// Guard decides whether content behind req may be shown for caps.
// Pending evaluation never yields Allowed and a failed check never yields Allowed.
func Guard(req Requirement, caps Capabilities) Decision {
	if caps.Loading {
		return Decision{State: StateLoading}
	}
	if caps.Failed {
		return Decision{State: StateDenied, Reason: ReasonCheckFailed}
	}
	if req == nil {
		return Decision{State: StateAllowed}
	}
	if !caps.Authenticated {
		return Decision{State: StateDenied, Reason: ReasonUnauthenticated}
	}
	if !req(caps) {
		return Decision{State: StateDenied, Reason: ReasonInsufficient}
	}
	return Decision{State: StateAllowed}
}
