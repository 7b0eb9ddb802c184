package model

type DocKind string

const (
	DocKindChat DocKind = "chat"
	DocKindPack DocKind = "pack"
)

func (k DocKind) Valid() bool {
	return k == DocKindChat || k == DocKindPack
}

type Document struct {
	Path              string   `json:"path"`
	Kind              DocKind  `json:"kind"`
	Project           string   `json:"project"`
	Title             string   `json:"title"`
	Summary           string   `json:"summary"`
	Tables            []string `json:"tables"`
	Tags              []string `json:"tags"`
	SchemaFingerprint string   `json:"schema_fingerprint,omitempty"`
	ContentHash       string   `json:"content_hash"`
	Ctime             int64    `json:"ctime"`
}
