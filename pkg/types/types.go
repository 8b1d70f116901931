package types

// CoreComponent is the component name used for WordPress core rows in the report.
const CoreComponent = "WordPress Core"

// Installation is a WordPress root found under the scan target.
type Installation struct {
	// Path is the absolute directory containing the configuration marker.
	Path string `json:"path" yaml:"path"`
	// ConfigFile is the marker file that identified the installation.
	ConfigFile string `json:"configFile" yaml:"configFile"`
	// Site is the bare hostname, filled once the live configuration is queried.
	Site string `json:"site,omitempty" yaml:"site,omitempty"`
}

// ResultKind tags the shape of an UpdateCheckResult.
type ResultKind int

const (
	// ResultInformational carries a free-text message and no updates.
	ResultInformational ResultKind = iota
	// ResultStructured carries a list of available updates.
	ResultStructured
)

func (k ResultKind) String() string {
	switch k {
	case ResultInformational:
		return "informational"
	case ResultStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// ComponentUpdate is one available update for a component.
type ComponentUpdate struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	UpdateType string `json:"update_type"`
}

// UpdateCheckResult is the outcome of a core update check.
type UpdateCheckResult struct {
	Kind    ResultKind
	Message string
	Updates []ComponentUpdate
}

// Informational returns a result holding only a message.
func Informational(message string) UpdateCheckResult {
	return UpdateCheckResult{Kind: ResultInformational, Message: message}
}

// Structured returns a result holding the given updates.
func Structured(updates []ComponentUpdate) UpdateCheckResult {
	return UpdateCheckResult{Kind: ResultStructured, Updates: updates}
}

// HasUpdates reports whether at least one update is available.
func (r UpdateCheckResult) HasUpdates() bool {
	return r.Kind == ResultStructured && len(r.Updates) > 0
}

// PluginRecord describes one installed plugin.
type PluginRecord struct {
	Name            string `json:"name"`
	Status          string `json:"status"`
	Version         string `json:"version"`
	UpdateVersion   string `json:"update_version"`
	UpdateAvailable bool   `json:"-"`
}

// BackupArtifact is the result of archiving one site.
type BackupArtifact struct {
	Site        string `yaml:"site"`
	DumpPath    string `yaml:"dumpPath"`
	ArchivePath string `yaml:"archivePath"`
	Codec       Codec  `yaml:"codec"`
	Size        int64  `yaml:"size"`

	ArchivePresent bool `yaml:"archivePresent"`
	DumpAbsent     bool `yaml:"dumpAbsent"`
}

// Verified reports whether both archive postconditions hold.
func (a *BackupArtifact) Verified() bool {
	return a != nil && a.ArchivePresent && a.DumpAbsent
}
