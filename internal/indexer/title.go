package indexer

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DocumentTitle derives a display title for a document:
// 1. First # heading (level 1)
// 2. First ## heading (level 2) if no level 1
// 3. Filename without extension, words capitalised, if no headings
func DocumentTitle(content []byte, filename string) string {
	if len(content) == 0 {
		return titleFromFilename(filename)
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(content))

	var firstH1, firstH2 string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if heading, ok := n.(*ast.Heading); ok {
			headingText := extractTextFromNode(heading, content)

			if heading.Level == 1 && firstH1 == "" {
				firstH1 = headingText
			} else if heading.Level == 2 && firstH2 == "" && firstH1 == "" {
				firstH2 = headingText
			}

			if firstH1 != "" {
				return ast.WalkStop, nil
			}
		}

		return ast.WalkContinue, nil
	})

	if firstH1 != "" {
		return firstH1
	}
	if firstH2 != "" {
		return firstH2
	}
	return titleFromFilename(filename)
}

// titleFromFilename removes the extension and capitalises each word.
func titleFromFilename(filename string) string {
	name := filepath.Base(filename)
	ext := filepath.Ext(name)
	if ext != "" {
		name = name[:len(name)-len(ext)]
	}

	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)

	words := strings.Fields(name)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}

	return strings.Join(words, " ")
}

// extractTextFromNode extracts text content from a node and its children.
func extractTextFromNode(n ast.Node, content []byte) string {
	var textBuilder strings.Builder

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch v := node.(type) {
		case *ast.Text:
			textBuilder.Write(v.Segment.Value(content))
		case *ast.String:
			textBuilder.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(textBuilder.String())
}
