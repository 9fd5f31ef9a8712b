package permission

import (
	"slices"
	"time"
)

// Action is an operation a principal may perform on a page.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// Actions lists every valid Action.
var Actions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionManage}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return slices.Contains(Actions, a)
}

// RoleTag is the internal role a mapping grants.
type RoleTag string

const (
	RoleSuperAdmin          RoleTag = "super_admin"
	RoleSubdivisionOverseer RoleTag = "subdivision_overseer"
	RoleCustom              RoleTag = "custom"
)

// Valid reports whether r is part of the closed role enumeration.
func (r RoleTag) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleSubdivisionOverseer, RoleCustom:
		return true
	}
	return false
}

// ConditionKind tags the variant of a Condition.
type ConditionKind string

const (
	ConditionOwnItemsOnly     ConditionKind = "own_items_only"
	ConditionMaxPerDay        ConditionKind = "max_per_day"
	ConditionRequiresApproval ConditionKind = "requires_approval"
	ConditionTimeRestricted   ConditionKind = "time_restricted"
)

// Valid reports whether k is a known condition variant.
func (k ConditionKind) Valid() bool {
	switch k {
	case ConditionOwnItemsOnly, ConditionMaxPerDay, ConditionRequiresApproval, ConditionTimeRestricted:
		return true
	}
	return false
}

// Condition narrows an otherwise granted page permission. Value is only
// meaningful for ConditionMaxPerDay (the daily limit) and
// ConditionTimeRestricted (hours of the window).
type Condition struct {
	Kind        ConditionKind `json:"type"`
	Value       *int          `json:"value,omitempty"`
	Description string        `json:"description,omitempty"`
}

// Restrictions is attached to an allow decision so callers can further
// constrain what they persist.
type Restrictions struct {
	AllowedFields []string    `json:"allowedFields,omitempty"`
	Conditions    []Condition `json:"conditions,omitempty"`
}

func (r *Restrictions) clone() *Restrictions {
	if r == nil {
		return nil
	}
	return &Restrictions{
		AllowedFields: slices.Clone(r.AllowedFields),
		Conditions:    slices.Clone(r.Conditions),
	}
}

// PagePermission grants actions on one page.
type PagePermission struct {
	PageID       string        `json:"pageId"`
	Actions      []Action      `json:"actions"`
	Restrictions *Restrictions `json:"restrictions,omitempty"`
}

// Allows reports whether a is in the granted action set.
func (p PagePermission) Allows(a Action) bool {
	return slices.Contains(p.Actions, a)
}

func (p PagePermission) clone() PagePermission {
	return PagePermission{
		PageID:       p.PageID,
		Actions:      slices.Clone(p.Actions),
		Restrictions: p.Restrictions.clone(),
	}
}

// RoleMapping binds one Discord role to an internal role and its grants.
type RoleMapping struct {
	ID              string           `json:"id"`
	DiscordRoleID   string           `json:"discordRoleId"`
	DisplayName     string           `json:"displayName"`
	Role            RoleTag          `json:"role"`
	Permissions     []string         `json:"permissions"`
	PagePermissions []PagePermission `json:"pagePermissions,omitempty"`
	Priority        int              `json:"priority"`
	Active          bool             `json:"active"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Page returns the mapping's page permission for pageID.
func (m RoleMapping) Page(pageID string) (PagePermission, bool) {
	for _, pp := range m.PagePermissions {
		if pp.PageID == pageID {
			return pp, true
		}
	}
	return PagePermission{}, false
}

func (m RoleMapping) clone() RoleMapping {
	out := m
	out.Permissions = slices.Clone(m.Permissions)
	if m.PagePermissions != nil {
		out.PagePermissions = make([]PagePermission, len(m.PagePermissions))
		for i, pp := range m.PagePermissions {
			out.PagePermissions[i] = pp.clone()
		}
	}
	return out
}

// PermissionDefinition describes a coarse permission id.
type PermissionDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// FieldDefinition names an editable field of a page.
type FieldDefinition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PageDefinition describes an admin page that can be granted.
type PageDefinition struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Fields      []FieldDefinition `json:"fields,omitempty"`
}

// RoleConfig is the single persisted role-configuration document.
type RoleConfig struct {
	DiscordRoleMappings  []RoleMapping          `json:"discordRoleMappings"`
	AvailablePermissions []PermissionDefinition `json:"availablePermissions"`
	PageDefinitions      []PageDefinition       `json:"pageDefinitions"`
}

// Clone returns a deep copy of c.
func (c *RoleConfig) Clone() *RoleConfig {
	if c == nil {
		return nil
	}
	out := &RoleConfig{
		DiscordRoleMappings:  make([]RoleMapping, len(c.DiscordRoleMappings)),
		AvailablePermissions: slices.Clone(c.AvailablePermissions),
		PageDefinitions:      make([]PageDefinition, len(c.PageDefinitions)),
	}
	for i, m := range c.DiscordRoleMappings {
		out.DiscordRoleMappings[i] = m.clone()
	}
	for i, p := range c.PageDefinitions {
		p.Fields = slices.Clone(p.Fields)
		out.PageDefinitions[i] = p
	}
	return out
}

// Mapping returns the mapping with the given id.
func (c *RoleConfig) Mapping(id string) (RoleMapping, bool) {
	if c == nil || id == "" {
		return RoleMapping{}, false
	}
	for _, m := range c.DiscordRoleMappings {
		if m.ID == id {
			return m, true
		}
	}
	return RoleMapping{}, false
}

// Principal is the user snapshot stored in a session at login time.
//
// MappingID names the role mapping that produced the snapshot. Sessions
// created before mapping ids were recorded leave it empty and are matched by
// role and permission set instead.
type Principal struct {
	ID              string           `json:"id"`
	Username        string           `json:"username"`
	DisplayName     string           `json:"displayName"`
	Role            RoleTag          `json:"role"`
	Permissions     []string         `json:"permissions"`
	PagePermissions []PagePermission `json:"pagePermissions,omitempty"`
	MappingID       string           `json:"mappingId,omitempty"`
}

// IsSuperAdmin reports whether p carries the super-admin role tag.
func (p *Principal) IsSuperAdmin() bool {
	return p != nil && p.Role == RoleSuperAdmin
}

// HasPermission reports whether p holds the coarse permission id.
func (p *Principal) HasPermission(id string) bool {
	return p != nil && slices.Contains(p.Permissions, id)
}

// PrincipalFromMapping projects a mapping onto a user identity.
func PrincipalFromMapping(id, username, displayName string, m RoleMapping) Principal {
	c := m.clone()
	return Principal{
		ID:              id,
		Username:        username,
		DisplayName:     displayName,
		Role:            c.Role,
		Permissions:     c.Permissions,
		PagePermissions: c.PagePermissions,
		MappingID:       c.ID,
	}
}
