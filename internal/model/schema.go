package model

type CompatibilityLevel string

const (
	CompatIdentical  CompatibilityLevel = "identical"
	CompatCompatible CompatibilityLevel = "compatible"
	CompatBreaking   CompatibilityLevel = "breaking"
	CompatUnknown    CompatibilityLevel = "unknown"
	// CompatError is only produced by drift scans when a pack cannot be checked.
	CompatError CompatibilityLevel = "error"
)

type CompatibilityResult struct {
	Level CompatibilityLevel `json:"level"`
	Notes []string           `json:"notes"`
}

type SchemaSnapshot struct {
	Fingerprint string                 `json:"fingerprint"`
	Slug        string                 `json:"slug"`
	Schema      map[string]interface{} `json:"schema"`
	Ctime       int64                  `json:"ctime"`
}

type PackDrift struct {
	Path   string              `json:"path"`
	Title  string              `json:"title"`
	Result CompatibilityResult `json:"result"`
}
