package domain

// CorpusSource selects what a question is answered from.
type CorpusSource string

const (
	CorpusTranscripts CorpusSource = "transcripts"
	CorpusPDF         CorpusSource = "pdf"
)

type Question struct {
	OwnerID     string       `json:"owner_id"`
	Text        string       `json:"question"`
	Source      CorpusSource `json:"source"`
	DocumentKey string       `json:"document_key,omitempty"`
	Limit       int          `json:"limit,omitempty"`
}

type CorpusDocument struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type RetrievedChunk struct {
	DocumentKey string  `json:"document_key"`
	ChunkIndex  int     `json:"chunk_index"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
}

type Answer struct {
	Text    string           `json:"response"`
	Sources []RetrievedChunk `json:"sources"`
}
