package model

type ArtifactKind string

const (
	ArtifactKindSQL  ArtifactKind = "sql"
	ArtifactKindCode ArtifactKind = "code"
	ArtifactKindText ArtifactKind = "text"
)

func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactKindSQL, ArtifactKindCode, ArtifactKindText:
		return true
	}
	return false
}

type ArtifactRef struct {
	Hash string       `json:"hash"`
	Kind ArtifactKind `json:"kind"`
}

type ContextPack struct {
	Document
	SourceChatHash string        `json:"source_chat_hash"`
	TokensEstimate int           `json:"tokens_estimate"`
	Artifacts      []ArtifactRef `json:"artifacts"`
	Body           string        `json:"body"`
}

type Artifact struct {
	Hash    string       `json:"hash"`
	Kind    ArtifactKind `json:"kind"`
	Lang    string       `json:"lang"`
	Size    int64        `json:"size"`
	Content string       `json:"content,omitempty"`
	Ctime   int64        `json:"ctime"`
}
