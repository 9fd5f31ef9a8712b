package permission

// Registry indexes the permission and page definitions of one RoleConfig so
// mappings can be validated against them.
//
// A Registry is a read-only snapshot; build a new one after the config changes.
type Registry struct {
	permissions map[string]struct{}
	pages       map[string]map[string]struct{}
}

// NewRegistry builds a Registry from cfg. A nil cfg yields the defaults.
func NewRegistry(cfg *RoleConfig) *Registry {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	r := &Registry{
		permissions: make(map[string]struct{}, len(cfg.AvailablePermissions)),
		pages:       make(map[string]map[string]struct{}, len(cfg.PageDefinitions)),
	}
	for _, p := range cfg.AvailablePermissions {
		r.permissions[p.ID] = struct{}{}
	}
	for _, page := range cfg.PageDefinitions {
		fields := make(map[string]struct{}, len(page.Fields))
		for _, f := range page.Fields {
			fields[f.ID] = struct{}{}
		}
		r.pages[page.ID] = fields
	}
	return r
}

// HasPermission reports whether id is a defined coarse permission.
func (r *Registry) HasPermission(id string) bool {
	_, ok := r.permissions[id]
	return ok
}

// HasPage reports whether id is a defined page.
func (r *Registry) HasPage(id string) bool {
	_, ok := r.pages[id]
	return ok
}

// HasField reports whether fieldID is declared on pageID. Pages that declare
// no fields accept any field id.
func (r *Registry) HasField(pageID, fieldID string) bool {
	fields, ok := r.pages[pageID]
	if !ok {
		return false
	}
	if len(fields) == 0 {
		return true
	}
	_, ok = fields[fieldID]
	return ok
}

// Count returns the number of defined pages.
func (r *Registry) Count() int {
	return len(r.pages)
}
