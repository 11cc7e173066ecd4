package indexer

// Chunk is one word-aligned slice of a document. Start is the index of the
// chunk's first word within the document's word sequence.
type Chunk struct {
	Index int
	Start int
	Text  string
}

// Stats summarises the state of the document index.
type Stats struct {
	Chunks  int      `json:"chunks"`
	Sources []string `json:"sources"`
}
