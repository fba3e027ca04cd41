package domain

// TranscriptTurn is one diarized speaker turn, in speaking order.
type TranscriptTurn struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// AudioSource is either a remotely reachable URL or a local file.
// Exactly one field is set.
type AudioSource struct {
	URL       string
	LocalPath string
}

func (s AudioSource) IsLocal() bool {
	return s.LocalPath != ""
}

func (s AudioSource) String() string {
	if s.IsLocal() {
		return s.LocalPath
	}
	return s.URL
}
