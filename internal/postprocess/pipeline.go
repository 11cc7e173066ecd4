// Package postprocess normalises raw model output into a message that is
// safe to send: balanced bold markup, canonical fallback handling, system-
// owned source attribution, image reference extraction, and sentence-
// boundary truncation. Stages are total and order-dependent; each stage's
// output is the next stage's input.
package postprocess

import (
	"context"
	"regexp"
	"strings"

	"safeguardai/internal/contextutil"
)

// ImageMarkerPrefix is the structured marker the image tool emits in front
// of a generated image URL.
const ImageMarkerPrefix = "SAFEGUARD_IMAGE_URL:"

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	sourceLineRe   = regexp.MustCompile(`\n?[ \t]*\*?Sources?:\*?[ \t]*[^\n]*`)
	markerURLRe    = regexp.MustCompile(`^(https://[^\s)\]>]+)`)
	imageHostRe    = regexp.MustCompile(`https://oaidalleapiprodscus\.blob\.core\.windows\.net/[^\s)\]>]+`)
	markerLineRe   = regexp.MustCompile(`\n?` + regexp.QuoteMeta(ImageMarkerPrefix) + `[^\n]*`)
	viewHereRe     = regexp.MustCompile(`(?i)\n?View here:\s*https?://[^\n]+`)
	linkExpiryRe   = regexp.MustCompile(`\n?Note:\s*This link expires[^\n]*`)
	bareURLRe      = regexp.MustCompile(`(?i)https?://[^\s)\]>"]+`)
	emptyImageMDRe = regexp.MustCompile(`!\[[^\]]*\]\s*\(\s*\)`)
	blankRunsRe    = regexp.MustCompile(`\n{3,}`)
	doubleSpaceRe  = regexp.MustCompile(`  +`)
)

// NormalizeBold collapses doubled emphasis markers to single ones until none
// remain (WhatsApp renders *text*, not **text**). The second return reports
// whether the remaining markers are balanced.
func NormalizeBold(text string) (string, bool) {
	for strings.Contains(text, "**") {
		text = strings.ReplaceAll(text, "**", "*")
	}
	return text, strings.Count(text, "*")%2 == 0
}

// ClassifyNotInDocs compares an answer against the canonical not-in-documents
// message. replace means the whole answer should become the canonical message
// (and sources cleared); omitSources means a refusal phrase was detected so
// attribution must be suppressed even if the answer is kept.
func ClassifyNotInDocs(answer, canonical string) (replace, omitSources bool) {
	an := strings.ToLower(whitespaceRe.ReplaceAllString(strings.TrimSpace(answer), " "))
	cn := strings.ToLower(whitespaceRe.ReplaceAllString(strings.TrimSpace(canonical), " "))

	exact := an == cn

	containsPhrase := strings.Contains(an, "isn't in our safety documents") ||
		strings.Contains(an, "not in our safety documents")
	if !containsPhrase && cn != "" {
		head := cn
		if len(head) > 50 {
			head = head[:50]
		}
		containsPhrase = strings.Contains(an, head)
	}

	shortRefusal := containsPhrase && len(an) <= len(cn)*2

	return exact || shortRefusal, containsPhrase
}

// StripSourceLines removes model-authored "Source:"/"Sources:" lines. The
// system, not the model, is authoritative for attribution.
func StripSourceLines(text string) string {
	return strings.TrimSpace(sourceLineRe.ReplaceAllString(text, ""))
}

// ExtractImageURL pulls the first well-formed URL following the image marker
// prefix, falling back to recognising a known image-host URL anywhere in the
// text. Returns "" when no image reference is present.
func ExtractImageURL(text string) string {
	if text == "" {
		return ""
	}
	if idx := strings.Index(text, ImageMarkerPrefix); idx >= 0 {
		rest := text[idx+len(ImageMarkerPrefix):]
		if m := markerURLRe.FindStringSubmatch(rest); m != nil {
			return strings.TrimRight(m[1], ".,;")
		}
	}
	if m := imageHostRe.FindString(text); m != "" {
		return strings.TrimRight(m, ".,;")
	}
	return ""
}

// StripImageHousekeeping removes the marker line, "View here" lines, link
// expiry notices, remaining bare URLs, and empty markdown image syntax, then
// collapses the blank runs and double spaces left behind.
func StripImageHousekeeping(text string) string {
	text = markerLineRe.ReplaceAllString(text, "")
	text = viewHereRe.ReplaceAllString(text, "")
	text = linkExpiryRe.ReplaceAllString(text, "")
	text = bareURLRe.ReplaceAllString(text, "")
	text = emptyImageMDRe.ReplaceAllString(text, "")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")
	text = doubleSpaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// TruncateAtSentence cuts text to at most maxLen characters, preferring the
// last sentence-ending separator within the limit, then the last space, then
// a hard cut. The result always ends in sentence punctuation.
func TruncateAtSentence(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}

	window := text[:maxLen]
	cut := -1
	for _, sep := range []string{". ", "! ", "? ", "\n"} {
		if idx := strings.LastIndex(window, sep); idx != -1 {
			cut = idx + len(sep)
			break
		}
	}
	if cut == -1 {
		if lastSpace := strings.LastIndex(window, " "); lastSpace > 0 {
			cut = lastSpace + 1
		} else {
			cut = maxLen - 1
		}
	}

	out := strings.TrimRight(text[:cut], " \t\n")
	if out != "" && !endsInSentencePunct(out) {
		out += "."
	}
	return out
}

func endsInSentencePunct(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

// AppendSources appends the canonical attribution line.
func AppendSources(text string, sources []string) string {
	return text + "\n\n*Sources:* " + strings.Join(sources, ", ")
}

// Processor runs the stages in order over one answer.
type Processor struct {
	canonical string
	maxLen    int
}

// NewProcessor creates a processor with the canonical not-in-documents
// message and the hard outbound length limit.
func NewProcessor(canonical string, maxLen int) *Processor {
	return &Processor{canonical: canonical, maxLen: maxLen}
}

// Input is one raw synthesis result entering the pipeline. FallbackImage,
// when set, is invoked after image extraction if the user asked for an image
// but no reference was found; it returns a URL or "".
type Input struct {
	Answer         string
	Sources        []string
	ImageRequested bool
	FallbackImage  func(ctx context.Context) string
}

// Result is the post-processed message.
type Result struct {
	Text     string
	Sources  []string
	ImageURL string
}

// Process runs stages 1-7 in order. No stage re-reads prior intermediate
// state; branch points are the not-in-documents classification, the image
// stages, and truncation/attribution.
func (p *Processor) Process(ctx context.Context, in Input) Result {
	logger := contextutil.LoggerFromContext(ctx)

	answer := in.Answer
	sources := in.Sources

	answer, balanced := NormalizeBold(answer)
	if !balanced {
		logger.WarnContext(ctx, "odd number of asterisks after bold normalisation, bold may be unbalanced")
	}

	replace, omitSources := ClassifyNotInDocs(answer, p.canonical)
	if replace {
		answer = p.canonical
		sources = nil
	}

	answer = StripSourceLines(answer)

	imageURL := ExtractImageURL(answer)
	if imageURL == "" && in.ImageRequested && in.FallbackImage != nil {
		imageURL = in.FallbackImage(ctx)
	}

	if imageURL != "" {
		answer = StripImageHousekeeping(answer)
	}

	if len(answer) > p.maxLen {
		logger.WarnContext(ctx, "response exceeded hard limit, trimming at sentence boundary",
			"length", len(answer), "max", p.maxLen)
		answer = TruncateAtSentence(answer, p.maxLen)
	}

	if len(sources) > 0 && !omitSources {
		answer = AppendSources(answer, sources)
	}

	return Result{Text: answer, Sources: sources, ImageURL: imageURL}
}
