package rag

// Result is a fully post-processed answer ready for delivery.
type Result struct {
	Answer   string
	Sources  []string
	ImageURL string
}
