package auth

// Action identifies an operation gated by the policy table.
type Action int

const (
	ActionUnknown Action = iota
	ActionListFranchises
	ActionViewMenu
	ActionRegister
	ActionLogin
	ActionLogout
	ActionUpdateUser
	ActionListUserFranchises
	ActionCreateFranchise
	ActionDeleteFranchise
	ActionCreateStore
	ActionDeleteStore
	ActionAddMenuItem
	ActionListOrders
	ActionCreateOrder
)

var actionNames = map[Action]string{
	ActionListFranchises:     "franchise.list",
	ActionViewMenu:           "menu.view",
	ActionRegister:           "auth.register",
	ActionLogin:              "auth.login",
	ActionLogout:             "auth.logout",
	ActionUpdateUser:         "user.update",
	ActionListUserFranchises: "franchise.list_user",
	ActionCreateFranchise:    "franchise.create",
	ActionDeleteFranchise:    "franchise.delete",
	ActionCreateStore:        "store.create",
	ActionDeleteStore:        "store.delete",
	ActionAddMenuItem:        "menu.add",
	ActionListOrders:         "order.list",
	ActionCreateOrder:        "order.create",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Requirement is what the request gate must establish before a handler runs.
type Requirement int

const (
	// RequireNone lets anonymous requests through.
	RequireNone Requirement = iota
	// RequireToken needs a correctly signed token; expiry and revocation are ignored.
	RequireToken
	// RequireSession needs an accepted token: valid signature, unexpired, not revoked.
	RequireSession
)

// ResourceKind names the kind of resource an action targets.
type ResourceKind string

const (
	ResourceNone      ResourceKind = ""
	ResourceUser      ResourceKind = "user"
	ResourceFranchise ResourceKind = "franchise"
	ResourceStore     ResourceKind = "store"
	ResourceMenu      ResourceKind = "menu"
	ResourceOrder     ResourceKind = "order"
)

// Resource describes the owner side of an authorization request.
type Resource struct {
	Kind        ResourceKind
	ID          string
	FranchiseID string
}

// Decision is the outcome of evaluating one request.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision              { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

type check func(p *Policy, actor *Actor, res Resource) Decision

type rule struct {
	requirement Requirement
	check       check
}

var rules = map[Action]rule{
	ActionListFranchises:     {RequireNone, public},
	ActionViewMenu:           {RequireNone, public},
	ActionRegister:           {RequireNone, public},
	ActionLogin:              {RequireNone, public},
	ActionLogout:             {RequireToken, authenticated},
	ActionUpdateUser:         {RequireSession, selfOrAdmin},
	ActionListUserFranchises: {RequireSession, selfOrAdmin},
	ActionCreateFranchise:    {RequireSession, adminOnly},
	ActionDeleteFranchise:    {RequireSession, adminOnly},
	ActionCreateStore:        {RequireSession, franchiseManager},
	ActionDeleteStore:        {RequireSession, franchiseManager},
	ActionAddMenuItem:        {RequireSession, adminOnly},
	ActionListOrders:         {RequireSession, authenticated},
	ActionCreateOrder:        {RequireSession, authenticated},
}

// Policy is the authorization decision table.
type Policy struct {
	franchiseeScope bool
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithFranchiseeScope lets a Franchisee scoped to a franchise manage that franchise's
// stores. Admin is unaffected either way.
func WithFranchiseeScope(enabled bool) PolicyOption {
	return func(p *Policy) { p.franchiseeScope = enabled }
}

// NewPolicy builds the policy table.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Requirement reports what the gate must verify for action. Unmodeled actions need a
// session (and are then denied by Decide).
func (p *Policy) Requirement(action Action) Requirement {
	r, ok := rules[action]
	if !ok {
		return RequireSession
	}
	return r.requirement
}

// Decide evaluates action for actor against res. A nil actor is anonymous.
func (p *Policy) Decide(actor *Actor, action Action, res Resource) Decision {
	r, ok := rules[action]
	if !ok {
		return deny("unmodeled action")
	}
	if r.requirement != RequireNone && actor == nil {
		return deny("unauthenticated")
	}
	return r.check(p, actor, res)
}

// Authorize is Decide folded into an error: nil or *DeniedError.
func (p *Policy) Authorize(actor *Actor, action Action, res Resource) error {
	d := p.Decide(actor, action, res)
	if d.Allowed {
		return nil
	}
	return &DeniedError{Action: action, Reason: d.Reason}
}

func public(*Policy, *Actor, Resource) Decision { return allow() }

func authenticated(_ *Policy, actor *Actor, _ Resource) Decision {
	if actor == nil || actor.UserID == "" {
		return deny("unauthenticated")
	}
	return allow()
}

func adminOnly(_ *Policy, actor *Actor, _ Resource) Decision {
	if actor.IsAdmin() {
		return allow()
	}
	return deny("admin role required")
}

func selfOrAdmin(_ *Policy, actor *Actor, res Resource) Decision {
	if actor.IsAdmin() {
		return allow()
	}
	if res.Kind == ResourceUser && res.ID != "" && actor.UserID == res.ID {
		return allow()
	}
	return deny("actor is neither the resource owner nor an admin")
}

func franchiseManager(p *Policy, actor *Actor, res Resource) Decision {
	if actor.IsAdmin() {
		return allow()
	}
	if p.franchiseeScope && actor.HasScopedRole(RoleFranchisee, res.FranchiseID) {
		return allow()
	}
	return deny("admin role required for franchise " + res.FranchiseID)
}
