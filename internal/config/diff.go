package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ThresholdsChanged bool
	NewPass           int
	NewFloor          int

	// RestartRequired lists changed sections that are only read at startup.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldPass, oldFloor := old.Grading.Thresholds()
	newPass, newFloor := new.Grading.Thresholds()
	if oldPass != newPass || oldFloor != newFloor {
		d.ThresholdsChanged = true
		d.NewPass, d.NewFloor = newPass, newFloor
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.TempDir != new.Server.TempDir {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameEntries(old.Providers.LLM, new.Providers.LLM) ||
		!sameEntries(old.Providers.STT, new.Providers.STT) ||
		!sameEntry(old.Providers.Transcoder, new.Providers.Transcoder) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Exercises != new.Exercises {
		d.RestartRequired = append(d.RestartRequired, "exercises")
	}
	return d
}

func sameEntries(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameEntry(a[i], b[i]) {
			return false
		}
	}
	return true
}

// sameEntry compares the scalar fields; option maps are compared by size
// only, which is enough to flag a restart in practice.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && len(a.Options) == len(b.Options)
}
