package portal

import (
	"context"

	"github.com/dppd-rp/portal/permission"
)

// RoleConfigView is the role configuration as shown to administrators.
// Discord role ids are masked.
type RoleConfigView struct {
	Mappings    []permission.RoleMapping          `json:"discordRoleMappings"`
	Permissions []permission.PermissionDefinition `json:"availablePermissions"`
	Pages       []permission.PageDefinition       `json:"pageDefinitions"`
}

func (e *Engine) requireSuperAdmin(ctx context.Context, actor *permission.Principal, op string) error {
	if actor == nil {
		return ErrUnauthorized
	}
	if actor.IsSuperAdmin() {
		return nil
	}
	e.metricInc(MetricRoleConfigRejected)
	e.emitAudit(ctx, auditEventRoleConfigDenied, false, actor.ID, "", "not super admin", func() map[string]string {
		return map[string]string{"op": op}
	})
	return ErrForbidden
}

// RoleConfig returns the current configuration for actor, a super admin.
func (e *Engine) RoleConfig(ctx context.Context, actor *permission.Principal) (RoleConfigView, error) {
	if err := e.requireSuperAdmin(ctx, actor, "list"); err != nil {
		return RoleConfigView{}, err
	}
	cfg := e.roles.Config(ctx).Clone()
	return RoleConfigView{
		Mappings:    e.roles.List(ctx),
		Permissions: cfg.AvailablePermissions,
		Pages:       cfg.PageDefinitions,
	}, nil
}

// AddRoleMapping stores a new mapping on behalf of actor.
func (e *Engine) AddRoleMapping(ctx context.Context, actor *permission.Principal, m permission.RoleMapping) (permission.RoleMapping, error) {
	if err := e.requireSuperAdmin(ctx, actor, "add"); err != nil {
		return permission.RoleMapping{}, err
	}
	added, err := e.roles.Add(ctx, m)
	if err != nil {
		return permission.RoleMapping{}, err
	}
	e.roleConfigChanged(ctx, actor, "add", added)
	return added, nil
}

// UpdateRoleMapping replaces mapping id on behalf of actor.
func (e *Engine) UpdateRoleMapping(ctx context.Context, actor *permission.Principal, id string, m permission.RoleMapping) (permission.RoleMapping, error) {
	if err := e.requireSuperAdmin(ctx, actor, "update"); err != nil {
		return permission.RoleMapping{}, err
	}
	updated, err := e.roles.Update(ctx, id, m)
	if err != nil {
		return permission.RoleMapping{}, err
	}
	e.roleConfigChanged(ctx, actor, "update", updated)
	return updated, nil
}

// DeleteRoleMapping removes mapping id on behalf of actor.
func (e *Engine) DeleteRoleMapping(ctx context.Context, actor *permission.Principal, id string) error {
	if err := e.requireSuperAdmin(ctx, actor, "delete"); err != nil {
		return err
	}
	if err := e.roles.Delete(ctx, id); err != nil {
		return err
	}
	e.roleConfigChanged(ctx, actor, "delete", permission.RoleMapping{ID: id})
	return nil
}

// SeedRoleConfig persists missing default definitions. It reports whether
// anything was written.
func (e *Engine) SeedRoleConfig(ctx context.Context) (bool, error) {
	return e.roles.Seed(ctx)
}

func (e *Engine) roleConfigChanged(ctx context.Context, actor *permission.Principal, op string, m permission.RoleMapping) {
	e.metricInc(MetricRoleConfigChanged)
	e.logger.Info("role config changed", "op", op, "mapping_id", m.ID, "actor", actor.ID)
	e.emitAudit(ctx, auditEventRoleConfigChanged, true, actor.ID, "", "", func() map[string]string {
		meta := map[string]string{"op": op, "mapping_id": m.ID}
		if m.DiscordRoleID != "" {
			meta["discord_role"] = permission.MaskRoleID(m.DiscordRoleID)
		}
		return meta
	})
}
