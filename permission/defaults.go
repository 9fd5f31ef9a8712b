package permission

// Coarse permission ids granted by older role mappings.
const (
	PermRoster        = "roster"
	PermEvents        = "events"
	PermWarehouse     = "warehouse"
	PermSubdivisions  = "subdivisions"
	PermResources     = "resources"
	PermForms         = "forms"
	PermAnnouncements = "announcements"
	PermTraining      = "training"
)

// Page ids.
const (
	PageRoster            = "roster"
	PageEvents            = "events"
	PageWarehouse         = "warehouse"
	PageSubdivisions      = "subdivisions"
	PageSubdivisionRoster = "subdivision-roster"
	PageResources         = "resources"
	PageForms             = "forms"
	PageFormSubmissions   = "form-submissions"
	PageAnnouncements     = "announcements"
	PageTraining          = "training"
	PageRoles             = "roles"
)

// legacyPagePermissions maps a page to the single coarse permission that
// grants view/create/edit on it when no page permission resolves.
var legacyPagePermissions = map[string]string{
	PageRoster:          PermRoster,
	PageEvents:          PermEvents,
	PageWarehouse:       PermWarehouse,
	PageSubdivisions:    PermSubdivisions,
	PageResources:       PermResources,
	PageForms:           PermForms,
	PageFormSubmissions: PermForms,
	PageAnnouncements:   PermAnnouncements,
	PageTraining:        PermTraining,
}

var legacyActions = []Action{ActionView, ActionEdit, ActionCreate}

var overseerPages = []string{PageSubdivisions, PageSubdivisionRoster}

var overseerActions = []Action{ActionView, ActionEdit}

var overseerFields = []string{"availability", "status", "notes"}

// LegacyPermissionFor returns the coarse permission guarding pageID.
func LegacyPermissionFor(pageID string) (string, bool) {
	p, ok := legacyPagePermissions[pageID]
	return p, ok
}

func defaultPermissions() []PermissionDefinition {
	return []PermissionDefinition{
		{ID: PermRoster, Name: "Roster", Description: "Edit the department roster"},
		{ID: PermEvents, Name: "Events", Description: "Manage department events"},
		{ID: PermWarehouse, Name: "Warehouse", Description: "Manage warehouse inventory"},
		{ID: PermSubdivisions, Name: "Subdivisions", Description: "Manage subdivisions"},
		{ID: PermResources, Name: "Resources", Description: "Manage public resources"},
		{ID: PermForms, Name: "Forms", Description: "Manage forms and review submissions"},
		{ID: PermAnnouncements, Name: "Announcements", Description: "Post announcements"},
		{ID: PermTraining, Name: "Training", Description: "Manage training records"},
	}
}

func defaultPages() []PageDefinition {
	return []PageDefinition{
		{ID: PageRoster, Name: "Roster", Fields: []FieldDefinition{
			{ID: "callsign", Name: "Callsign"}, {ID: "rank", Name: "Rank"},
			{ID: "status", Name: "Status"}, {ID: "notes", Name: "Notes"},
		}},
		{ID: PageEvents, Name: "Events", Fields: []FieldDefinition{
			{ID: "title", Name: "Title"}, {ID: "description", Name: "Description"},
			{ID: "date", Name: "Date"}, {ID: "location", Name: "Location"},
		}},
		{ID: PageWarehouse, Name: "Warehouse", Fields: []FieldDefinition{
			{ID: "name", Name: "Name"}, {ID: "quantity", Name: "Quantity"}, {ID: "category", Name: "Category"},
		}},
		{ID: PageSubdivisions, Name: "Subdivisions", Fields: []FieldDefinition{
			{ID: "name", Name: "Name"}, {ID: "description", Name: "Description"},
			{ID: "availability", Name: "Availability"}, {ID: "status", Name: "Status"},
			{ID: "notes", Name: "Notes"}, {ID: "leader", Name: "Leader"},
		}},
		{ID: PageSubdivisionRoster, Name: "Subdivision roster", Fields: []FieldDefinition{
			{ID: "member", Name: "Member"}, {ID: "availability", Name: "Availability"},
			{ID: "status", Name: "Status"}, {ID: "notes", Name: "Notes"},
		}},
		{ID: PageResources, Name: "Resources"},
		{ID: PageForms, Name: "Forms"},
		{ID: PageFormSubmissions, Name: "Form submissions"},
		{ID: PageAnnouncements, Name: "Announcements"},
		{ID: PageTraining, Name: "Training"},
		{ID: PageRoles, Name: "Role configuration", Description: "Super-admin only"},
	}
}

// DefaultConfig returns a configuration holding only the seeded definitions.
func DefaultConfig() *RoleConfig {
	cfg := &RoleConfig{DiscordRoleMappings: []RoleMapping{}}
	SeedDefaults(cfg)
	return cfg
}

// SeedDefaults appends every default permission and page definition missing
// from cfg, so documents written by older releases gain new capabilities.
// It reports whether cfg changed.
func SeedDefaults(cfg *RoleConfig) bool {
	if cfg == nil {
		return false
	}
	changed := false

	havePerm := make(map[string]struct{}, len(cfg.AvailablePermissions))
	for _, p := range cfg.AvailablePermissions {
		havePerm[p.ID] = struct{}{}
	}
	for _, p := range defaultPermissions() {
		if _, ok := havePerm[p.ID]; !ok {
			cfg.AvailablePermissions = append(cfg.AvailablePermissions, p)
			changed = true
		}
	}

	havePage := make(map[string]struct{}, len(cfg.PageDefinitions))
	for _, p := range cfg.PageDefinitions {
		havePage[p.ID] = struct{}{}
	}
	for _, p := range defaultPages() {
		if _, ok := havePage[p.ID]; !ok {
			cfg.PageDefinitions = append(cfg.PageDefinitions, p)
			changed = true
		}
	}

	if cfg.DiscordRoleMappings == nil {
		cfg.DiscordRoleMappings = []RoleMapping{}
	}
	return changed
}
