package permission

import (
	"context"
	"slices"
)

// Deny reasons returned by Evaluate.
const (
	ReasonNotAuthenticated = "not authenticated"
	ReasonNoPagePermission = "no permission for this page"
	ReasonActionDenied     = "action not permitted on this page"
	ReasonFieldDenied      = "field not permitted"
	ReasonNotOwner         = "only the owner may modify this item"
	ReasonUnknownCondition = "unsupported permission condition"
	ReasonMappingRevoked   = "role mapping no longer active"
)

// ConfigSource supplies the role configuration to an Evaluator.
// *RoleManager implements it.
type ConfigSource interface {
	Config(ctx context.Context) *RoleConfig
}

// CheckOptions narrows a check to one item or field.
type CheckOptions struct {
	// ItemOwnerID is the creator of the item being acted on; empty for creates.
	ItemOwnerID string
	// FieldID is the field being written, if any.
	FieldID string
}

// Decision is the evaluator's answer. Restrictions is set only on allow.
type Decision struct {
	Allowed          bool          `json:"allowed"`
	Reason           string        `json:"reason,omitempty"`
	Restrictions     *Restrictions `json:"restrictions,omitempty"`
	RequiresApproval bool          `json:"requiresApproval,omitempty"`
}

func allow(r *Restrictions) Decision { return Decision{Allowed: true, Restrictions: r} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Evaluator answers page/action questions for a principal.
type Evaluator struct {
	source ConfigSource
}

// NewEvaluator returns an Evaluator reading mappings from source.
func NewEvaluator(source ConfigSource) *Evaluator {
	return &Evaluator{source: source}
}

// Evaluate decides whether user may perform action on pageID. It never
// returns an error: every failure is a deny with a reason.
func (e *Evaluator) Evaluate(ctx context.Context, user *Principal, pageID string, action Action, opts CheckOptions) Decision {
	if user == nil {
		return deny(ReasonNotAuthenticated)
	}
	if user.IsSuperAdmin() {
		return allow(nil)
	}

	pp, ok, revoked := e.resolvePage(ctx, user, pageID)
	if revoked {
		return deny(ReasonMappingRevoked)
	}
	if !ok {
		return legacyDecision(user, pageID, action, opts)
	}

	if !pp.Allows(action) {
		return deny(ReasonActionDenied)
	}
	if opts.FieldID != "" && pp.Restrictions != nil && len(pp.Restrictions.AllowedFields) > 0 {
		if !slices.Contains(pp.Restrictions.AllowedFields, opts.FieldID) {
			return deny(ReasonFieldDenied)
		}
	}

	d := allow(pp.Restrictions.clone())
	if pp.Restrictions == nil {
		return d
	}
	for _, c := range pp.Restrictions.Conditions {
		switch c.Kind {
		case ConditionOwnItemsOnly:
			if opts.ItemOwnerID != "" && opts.ItemOwnerID != user.ID {
				return deny(ReasonNotOwner)
			}
		case ConditionMaxPerDay, ConditionTimeRestricted:
			// Not enforced yet.
		case ConditionRequiresApproval:
			d.RequiresApproval = true
		default:
			return deny(ReasonUnknownCondition)
		}
	}
	return d
}

// resolvePage finds the page permission for the user. Sessions carrying a
// mapping id only ever resolve through that mapping, and report revoked when
// it was deleted or deactivated; older sessions fall back to matching role
// and permission set over active mappings, highest priority first.
func (e *Evaluator) resolvePage(ctx context.Context, user *Principal, pageID string) (pp PagePermission, ok, revoked bool) {
	cfg := e.source.Config(ctx)
	if cfg == nil {
		return PagePermission{}, false, user.MappingID != ""
	}

	if user.MappingID != "" {
		m, found := cfg.Mapping(user.MappingID)
		if !found || !m.Active {
			return PagePermission{}, false, true
		}
		pp, ok = m.Page(pageID)
		return pp, ok, false
	}

	var (
		best  PagePermission
		prio  int
		found bool
	)
	for _, m := range cfg.DiscordRoleMappings {
		if !m.Active || m.Role != user.Role || !samePermissionSet(m.Permissions, user.Permissions) {
			continue
		}
		page, ok := m.Page(pageID)
		if !ok {
			continue
		}
		if !found || m.Priority > prio {
			best, prio, found = page, m.Priority, true
		}
	}
	return best, found, false
}

func legacyDecision(user *Principal, pageID string, action Action, opts CheckOptions) Decision {
	if perm, ok := LegacyPermissionFor(pageID); ok && user.HasPermission(perm) && slices.Contains(legacyActions, action) {
		return allow(nil)
	}

	if user.Role == RoleSubdivisionOverseer && slices.Contains(overseerPages, pageID) && slices.Contains(overseerActions, action) {
		if opts.FieldID != "" && !slices.Contains(overseerFields, opts.FieldID) {
			return deny(ReasonFieldDenied)
		}
		return allow(&Restrictions{AllowedFields: slices.Clone(overseerFields)})
	}

	return deny(ReasonNoPagePermission)
}

func samePermissionSet(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, p := range b {
		if _, ok := set[p]; !ok {
			return false
		}
		other[p] = struct{}{}
	}
	return len(set) == len(other)
}
