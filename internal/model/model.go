package model

// Document is a raw corpus file. Documents only live for the duration of a
// rebuild; the index keeps chunks, not documents.
type Document struct {
	Path string
	Text string
}

// Chunk is one retrievable window of a source document. Text is capped at the
// configured storage length; the embedding is always computed from the full
// window before the cap is applied.
type Chunk struct {
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_idx"`
	Text       string `json:"text"`
}

type SearchResult struct {
	Score      float32 `json:"score"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_idx"`
	Text       string  `json:"text"`
}

type QueryResult struct {
	Query   string         `json:"query"`
	Lang    string         `json:"lang"`
	Results []SearchResult `json:"results"`
}

type AnswerResult struct {
	QueryResult
	Answer string `json:"answer"`
}

type BuildStats struct {
	Vectors int `json:"vectors"`
	Dim     int `json:"dim"`
}
