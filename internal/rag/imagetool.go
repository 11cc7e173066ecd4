package rag

import (
	"context"
	"strings"

	"safeguardai/internal/contextutil"
	"safeguardai/internal/postprocess"
)

// ImageGenerator produces an image for a prompt and returns its URL.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ImageTool wraps image generation for safety answers. Its output is a plain
// string so failures degrade into text-only answers instead of errors.
type ImageTool struct {
	generator ImageGenerator
}

// NewImageTool creates an image tool backed by the given generator. A nil
// generator disables image generation.
func NewImageTool(generator ImageGenerator) *ImageTool {
	return &ImageTool{generator: generator}
}

// Run generates a photorealistic safety image for the description and returns
// a response containing the marker line the post-processor extracts. On
// failure it returns a TOOL ERROR string instead.
func (t *ImageTool) Run(ctx context.Context, description string) string {
	logger := contextutil.LoggerFromContext(ctx)

	if t.generator == nil {
		logger.ErrorContext(ctx, "image tool called without a generator")
		return "TOOL ERROR: Image generation is unavailable. Provide the safety information as text instead."
	}

	prompt := "Professional photograph of " + description + " for workplace safety training. " +
		"Style: real camera photo, documentary or training manual quality. " +
		"Natural lighting, real materials and textures, authentic industrial or workplace setting. " +
		"Single clear subject in frame. " +
		"Do not include: illustrations, cartoons, CGI, 3D renders, diagrams, infographics, or any text or labels in the image."

	url, err := t.generator.Generate(ctx, prompt)
	if err != nil {
		logger.ErrorContext(ctx, "image generation failed", "error", err)
		return "TOOL ERROR: Image generation failed. Provide the safety information as text instead."
	}

	logger.InfoContext(ctx, "safety image generated", "description", truncateForLog(description, 50))
	return "Safety image generated successfully.\n" + postprocess.ImageMarkerPrefix + url
}

// ImageRequested reports whether the query contains any image trigger phrase.
func ImageRequested(query string, triggerPhrases []string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, phrase := range triggerPhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}

// DescriptionForImage derives a short image description from the query: the
// text after the first trigger phrase, stripped of a leading article, capped
// at maxLen with a word-boundary ellipsis. Empty results fall back to the
// configured generic description.
func DescriptionForImage(query string, triggerPhrases []string, maxLen int, fallback string) string {
	q := strings.TrimSpace(query)
	lower := strings.ToLower(q)

	for _, phrase := range triggerPhrases {
		idx := strings.Index(lower, phrase)
		if idx == -1 {
			continue
		}
		after := strings.TrimSpace(q[idx+len(phrase):])
		for _, lead := range []string{"of ", "a ", "an ", "the "} {
			if strings.HasPrefix(strings.ToLower(after), lead) {
				after = strings.TrimSpace(after[len(lead):])
				break
			}
		}
		if after != "" {
			q = after
			break
		}
	}

	if len(q) > maxLen {
		head := q[:maxLen-3]
		if cut := strings.LastIndex(head, " "); cut != -1 {
			q = head[:cut] + "..."
		} else {
			q = q[:maxLen]
		}
	}

	if q == "" {
		return fallback
	}
	return q
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
