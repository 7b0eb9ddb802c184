package model

// IndexInfo describes the index currently served to readers.
type IndexInfo struct {
	Version   uint64 `json:"version"`
	Count     int    `json:"count"`
	Dim       int    `json:"dim"`
	ModelName string `json:"model_name"`
	Ctime     int64  `json:"ctime"`
}

type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}
