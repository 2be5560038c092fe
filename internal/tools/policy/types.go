// Package policy decides which tool plugins a session may load. User
// settings express intent as named toggles; the resolver maps toggles
// to plugin identifiers and gates secret-dependent toggles on whether
// the credential is actually present.
package policy

// Toggle is one user-facing switch in the toggle manifest. A toggle
// can govern several plugins and may require a secret to be usable.
type Toggle struct {
	ID             string
	PluginIDs      []string
	RequiresSecret string
	DefaultEnabled bool
	Description    string
}

// ToolSettings is the persisted user preference block. A nil pointer
// means the user never configured anything and defaults apply.
type ToolSettings struct {
	// EnabledTools maps toggle ids to the desired state. Toggles not
	// present keep their manifest default.
	EnabledTools map[string]bool `yaml:"enabledTools" json:"enabledTools"`
}

// LoadWarning records a toggle the resolver could not honor.
type LoadWarning struct {
	// Reason is a stable machine key; "missing-secret" is currently
	// the only value.
	Reason   string
	ID       string
	SecretID string
}

// Resolution is the resolver output consumed by the capability host.
type Resolution struct {
	// AllowedPluginIDs holds the plugins that referenced toggles
	// permit. Plugins never referenced by any toggle are outside this
	// set and remain unrestricted; check Referenced before consulting
	// the allow set.
	AllowedPluginIDs map[string]struct{}

	// Referenced holds every plugin id any manifest toggle governs.
	Referenced map[string]struct{}

	Warnings []LoadWarning
}

// Allows reports whether a plugin may be loaded under this resolution.
// Unreferenced plugins are always allowed.
func (r Resolution) Allows(pluginID string) bool {
	if _, referenced := r.Referenced[pluginID]; !referenced {
		return true
	}
	_, ok := r.AllowedPluginIDs[pluginID]
	return ok
}
