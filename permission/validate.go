package permission

import (
	"fmt"
	"regexp"
	"strings"
)

var discordRoleIDPattern = regexp.MustCompile(`^\d{17,19}$`)

// ValidDiscordRoleID reports whether id looks like a Discord snowflake.
func ValidDiscordRoleID(id string) bool {
	return discordRoleIDPattern.MatchString(id)
}

// ValidateMapping checks m against the closed enumerations and the
// definitions known to reg.
func ValidateMapping(m RoleMapping, reg *Registry) error {
	if !ValidDiscordRoleID(m.DiscordRoleID) {
		return fmt.Errorf("%w: discord role id must be 17-19 digits", ErrInvalidMapping)
	}
	if strings.TrimSpace(m.DisplayName) == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalidMapping)
	}
	if !m.Role.Valid() {
		return fmt.Errorf("%w: unsupported role %q", ErrInvalidMapping, m.Role)
	}
	for _, p := range m.Permissions {
		if !reg.HasPermission(p) {
			return fmt.Errorf("%w: unknown permission %q", ErrInvalidMapping, p)
		}
	}

	seen := make(map[string]struct{}, len(m.PagePermissions))
	for _, pp := range m.PagePermissions {
		if !reg.HasPage(pp.PageID) {
			return fmt.Errorf("%w: unknown page %q", ErrInvalidMapping, pp.PageID)
		}
		if _, dup := seen[pp.PageID]; dup {
			return fmt.Errorf("%w: page %q granted twice", ErrInvalidMapping, pp.PageID)
		}
		seen[pp.PageID] = struct{}{}

		if len(pp.Actions) == 0 {
			return fmt.Errorf("%w: page %q grants no actions", ErrInvalidMapping, pp.PageID)
		}
		for _, a := range pp.Actions {
			if !a.Valid() {
				return fmt.Errorf("%w: unknown action %q on page %q", ErrInvalidMapping, a, pp.PageID)
			}
		}
		if pp.Restrictions == nil {
			continue
		}
		for _, f := range pp.Restrictions.AllowedFields {
			if !reg.HasField(pp.PageID, f) {
				return fmt.Errorf("%w: unknown field %q on page %q", ErrInvalidMapping, f, pp.PageID)
			}
		}
		for _, c := range pp.Restrictions.Conditions {
			if err := validateCondition(c); err != nil {
				return fmt.Errorf("%w: page %q: %v", ErrInvalidMapping, pp.PageID, err)
			}
		}
	}
	return nil
}

func validateCondition(c Condition) error {
	switch c.Kind {
	case ConditionOwnItemsOnly, ConditionRequiresApproval:
		return nil
	case ConditionMaxPerDay:
		if c.Value == nil || *c.Value <= 0 {
			return fmt.Errorf("condition %q needs a positive value", c.Kind)
		}
		return nil
	case ConditionTimeRestricted:
		if c.Value != nil && *c.Value <= 0 {
			return fmt.Errorf("condition %q value must be positive when set", c.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unsupported condition %q", c.Kind)
	}
}

// MaskRoleID hides all but the trailing four characters of a Discord role id.
func MaskRoleID(id string) string {
	const visible = 4
	if len(id) <= visible {
		return strings.Repeat("*", len(id))
	}
	return "…" + id[len(id)-visible:]
}
