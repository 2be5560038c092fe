package policy

import (
	"strings"

	"github.com/quarryhq/quarry/internal/secrets"
)

// Resolve computes the plugin allow set for a session.
//
// Rules:
//   - nil settings means every toggle keeps its manifest default.
//   - A toggle with RequiresSecret set is only honored when the secret
//     resolves; otherwise its plugins are omitted and a
//     "missing-secret" warning is recorded, even if the user enabled
//     the toggle explicitly. RequiresSecret may list alternatives
//     separated by "|"; any one satisfies the gate.
//   - Settings entries for toggle ids not in the manifest are dropped
//     silently.
//   - Plugins no toggle references are unrestricted; Resolution.Allows
//     reports them as allowed.
func Resolve(settings *ToolSettings, manifest []Toggle, store secrets.Store) Resolution {
	res := Resolution{
		AllowedPluginIDs: make(map[string]struct{}),
		Referenced:       make(map[string]struct{}),
	}

	for _, toggle := range manifest {
		for _, id := range toggle.PluginIDs {
			res.Referenced[id] = struct{}{}
		}

		enabled := toggle.DefaultEnabled
		if settings != nil {
			if v, ok := settings.EnabledTools[toggle.ID]; ok {
				enabled = v
			}
		}
		if !enabled {
			continue
		}

		if toggle.RequiresSecret != "" && !anySecret(store, toggle.RequiresSecret) {
			res.Warnings = append(res.Warnings, LoadWarning{
				Reason:   "missing-secret",
				ID:       toggle.ID,
				SecretID: toggle.RequiresSecret,
			})
			continue
		}

		for _, id := range toggle.PluginIDs {
			res.AllowedPluginIDs[id] = struct{}{}
		}
	}

	return res
}

func anySecret(store secrets.Store, spec string) bool {
	for _, name := range strings.Split(spec, "|") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := store.Get(name); ok {
			return true
		}
	}
	return false
}
