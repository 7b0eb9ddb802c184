package model

type SearchHit struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// Candidate is a search hit that survived the pack filter, carrying the
// metadata the selector shows to the relevance oracle.
type Candidate struct {
	SearchHit
	Document *Document `json:"document"`
}

// PackSelection is one pack chosen by the selector. A nil ArtifactIndexes
// means every artifact of the pack may be used.
type PackSelection struct {
	Path            string  `json:"path"`
	Score           float64 `json:"score"`
	ArtifactIndexes []int   `json:"artifact_indexes,omitempty"`
}
