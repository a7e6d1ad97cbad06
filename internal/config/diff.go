package config

// ConfigDiff describes what changed between two configs. Only fields that can
// be hot-reloaded without restarting live sessions are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoiceChanged covers TTS voice and speed; new sessions pick it up.
	VoiceChanged bool

	// ServersChanged lists MCP tool servers that were added, removed, or
	// reconfigured.
	ServersChanged []ServerDiff
}

// ServerDiff describes what changed for one MCP server between two configs.
type ServerDiff struct {
	Name           string
	Added          bool
	Removed        bool
	CommandChanged bool
}

// Changed reports whether the diff carries any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VoiceChanged || len(d.ServersChanged) > 0
}

// Diff compares old and new configs and returns what changed. Only tracks
// changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Providers.TTS.VoiceID != new.Providers.TTS.VoiceID ||
		old.Providers.TTS.Speed != new.Providers.TTS.Speed {
		d.VoiceChanged = true
	}

	oldServers := make(map[string]*MCPServerConfig, len(old.MCP.Servers))
	for i := range old.MCP.Servers {
		oldServers[old.MCP.Servers[i].Name] = &old.MCP.Servers[i]
	}
	newServers := make(map[string]*MCPServerConfig, len(new.MCP.Servers))
	for i := range new.MCP.Servers {
		newServers[new.MCP.Servers[i].Name] = &new.MCP.Servers[i]
	}

	for name, oldSrv := range oldServers {
		newSrv, exists := newServers[name]
		if !exists {
			d.ServersChanged = append(d.ServersChanged, ServerDiff{Name: name, Removed: true})
			continue
		}
		if oldSrv.Command != newSrv.Command {
			d.ServersChanged = append(d.ServersChanged, ServerDiff{Name: name, CommandChanged: true})
		}
	}
	for name := range newServers {
		if _, exists := oldServers[name]; !exists {
			d.ServersChanged = append(d.ServersChanged, ServerDiff{Name: name, Added: true})
		}
	}

	return d
}
