package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; everything else
// is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AssessmentChanged is true when any scorer threshold, band, strategy
	// or alignment mode changed.
	AssessmentChanged bool

	// VoicesChanged is true when the synthesis voice table changed.
	VoicesChanged bool

	// RestartRequired names the sections that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AssessmentChanged && !d.VoicesChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldAssess, newAssess := old.Assessment, new.Assessment
	if oldAssess.Dictionary != newAssess.Dictionary {
		d.RestartRequired = append(d.RestartRequired, "assessment.dictionary")
	}
	oldAssess.Dictionary, newAssess.Dictionary = "", ""
	if !reflect.DeepEqual(oldAssess, newAssess) {
		d.AssessmentChanged = true
	}

	if !reflect.DeepEqual(old.Synthesis.Voices, new.Synthesis.Voices) {
		d.VoicesChanged = true
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Transcription, new.Transcription) {
		d.RestartRequired = append(d.RestartRequired, "transcription")
	}
	oldSyn, newSyn := old.Synthesis, new.Synthesis
	oldSyn.Voices, newSyn.Voices = nil, nil
	if !reflect.DeepEqual(oldSyn, newSyn) {
		d.RestartRequired = append(d.RestartRequired, "synthesis")
	}
	if old.Progress != new.Progress {
		d.RestartRequired = append(d.RestartRequired, "progress")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}

	return d
}
