package indexer

import "testing"

func TestDocumentTitle(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		filename string
		want     string
	}{
		{
			name:     "first h1 wins",
			content:  "intro text\n\n# Electrical Safety\n\n## Arc Flash\n",
			filename: "doc.md",
			want:     "Electrical Safety",
		},
		{
			name:     "h2 when no h1",
			content:  "## Confined Space Entry\n\nbody\n",
			filename: "doc.md",
			want:     "Confined Space Entry",
		},
		{
			name:     "filename fallback",
			content:  "plain text without headings",
			filename: "ppe_requirements-v2.txt",
			want:     "Ppe Requirements V2",
		},
		{
			name:     "empty content uses filename",
			content:  "",
			filename: "docs/fire safety.md",
			want:     "Fire Safety",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DocumentTitle([]byte(tt.content), tt.filename)
			if got != tt.want {
				t.Errorf("DocumentTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
