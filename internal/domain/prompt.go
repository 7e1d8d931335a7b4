package domain

// Prompt is a single completion request to the LLM backend.
type Prompt struct {
	Model       string
	System      string
	Query       string
	Temperature float64
	LastK       int
	SessionID   string
	RAG         *RAGOptions
}

// RAGOptions turns on retrieval against documents uploaded to the prompt's
// session.
type RAGOptions struct {
	Threshold float64
	K         int
}

// Document is a reference file or text blob uploaded for retrieval.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
	// Text, when set, is uploaded as a text part instead of a file.
	Text        string
	Strategy    string
	Description string
	SessionID   string
}
