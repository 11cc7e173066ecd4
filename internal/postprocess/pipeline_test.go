package postprocess

import (
	"context"
	"strings"
	"testing"
)

const canonical = "This isn't in our safety documents. Please contact your HSE officer or check company communications."

func TestNormalizeBold(t *testing.T) {
	tests := []struct {
		name         string
		in           string
		want         string
		wantBalanced bool
	}{
		{"double to single", "**Warning**: stay clear", "*Warning*: stay clear", true},
		{"triple collapses", "***Danger***", "*Danger*", true},
		{"already single", "*Caution* required", "*Caution* required", true},
		{"no markup", "plain text", "plain text", true},
		{"odd markers unbalanced", "*open and *more* text", "*open and *more* text", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, balanced := NormalizeBold(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeBold(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if balanced != tt.wantBalanced {
				t.Errorf("NormalizeBold(%q) balanced = %v, want %v", tt.in, balanced, tt.wantBalanced)
			}
		})
	}
}

func TestClassifyNotInDocs(t *testing.T) {
	tests := []struct {
		name        string
		answer      string
		wantReplace bool
		wantOmit    bool
	}{
		{"exact canonical", canonical, true, true},
		{
			"exact modulo whitespace and case",
			"this isn't in our safety documents.\nPlease contact your HSE officer or check company communications.",
			true, true,
		},
		{
			"short refusal variant",
			"I'm sorry, that's not in our safety documents. Ask your HSE officer.",
			true, true,
		},
		{
			"long answer mentioning the phrase keeps text but omits sources",
			"The fire extinguisher types covered in detail are water, foam and CO2. " +
				"Dry powder units are mentioned briefly. Note that hose reel maintenance " +
				"isn't in our safety documents, so for that topic speak to your HSE officer. " +
				"For the covered types, monthly visual checks and annual servicing apply.",
			false, true,
		},
		{"ordinary answer", "Wear cut-resistant gloves when handling sheet metal.", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replace, omit := ClassifyNotInDocs(tt.answer, canonical)
			if replace != tt.wantReplace || omit != tt.wantOmit {
				t.Errorf("ClassifyNotInDocs() = (%v, %v), want (%v, %v)",
					replace, omit, tt.wantReplace, tt.wantOmit)
			}
		})
	}
}

func TestStripSourceLines(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Wear gloves.\n*Sources:* PPE Manual", "Wear gloves."},
		{"Wear gloves.\nSources: PPE Manual, Welding Guide\nAlways.", "Wear gloves.\nAlways."},
		{"Source: PPE Manual\nWear gloves.", "Wear gloves."},
		{"No attribution here.", "No attribution here."},
	}

	for _, tt := range tests {
		if got := StripSourceLines(tt.in); got != tt.want {
			t.Errorf("StripSourceLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractImageURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"marker line",
			"Safety image generated successfully.\n" + ImageMarkerPrefix + "https://example.com/img.png",
			"https://example.com/img.png",
		},
		{
			"marker with trailing punctuation",
			ImageMarkerPrefix + "https://example.com/img.png.",
			"https://example.com/img.png",
		},
		{
			"known image host without marker",
			"See the image at https://oaidalleapiprodscus.blob.core.windows.net/private/img.png?sig=abc for details.",
			"https://oaidalleapiprodscus.blob.core.windows.net/private/img.png?sig=abc",
		},
		{"no image reference", "Wear your hard hat at all times.", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractImageURL(tt.in); got != tt.want {
				t.Errorf("ExtractImageURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripImageHousekeeping(t *testing.T) {
	in := "Hard hats protect against falling objects.\n" +
		ImageMarkerPrefix + "https://example.com/img.png\n" +
		"View here: https://example.com/img.png\n" +
		"Note: This link expires in 60 minutes.\n\n\n" +
		"Inspect the shell for cracks before each use."

	got := StripImageHousekeeping(in)
	for _, leftover := range []string{ImageMarkerPrefix, "View here", "expires", "https://"} {
		if strings.Contains(got, leftover) {
			t.Errorf("StripImageHousekeeping() left %q in %q", leftover, got)
		}
	}
	if !strings.Contains(got, "Hard hats protect") || !strings.Contains(got, "Inspect the shell") {
		t.Errorf("StripImageHousekeeping() dropped answer text: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("StripImageHousekeeping() left a blank run: %q", got)
	}
}

func TestTruncateAtSentence(t *testing.T) {
	t.Run("under limit unchanged", func(t *testing.T) {
		in := "Short answer."
		if got := TruncateAtSentence(in, 100); got != in {
			t.Errorf("TruncateAtSentence() = %q, want %q", got, in)
		}
	})

	t.Run("cuts at sentence boundary", func(t *testing.T) {
		in := "Alpha rules apply here. Beta rules apply next. Gamma rules continue further."
		got := TruncateAtSentence(in, 50)
		want := "Alpha rules apply here. Beta rules apply next."
		if got != want {
			t.Errorf("TruncateAtSentence() = %q, want %q", got, want)
		}
	})

	t.Run("falls back to word boundary", func(t *testing.T) {
		in := strings.Repeat("lockout ", 30)
		got := TruncateAtSentence(in, 50)
		if len(got) > 51 {
			t.Errorf("TruncateAtSentence() length = %d, want <= 51", len(got))
		}
		if !strings.HasSuffix(got, ".") {
			t.Errorf("TruncateAtSentence() = %q, want sentence punctuation at end", got)
		}
	})
}

func TestAppendSources(t *testing.T) {
	got := AppendSources("Wear gloves.", []string{"PPE Manual", "Welding Guide"})
	want := "Wear gloves.\n\n*Sources:* PPE Manual, Welding Guide"
	if got != want {
		t.Errorf("AppendSources() = %q, want %q", got, want)
	}
}

func TestProcessor_Process(t *testing.T) {
	p := NewProcessor(canonical, 1400)

	t.Run("full pass", func(t *testing.T) {
		in := Input{
			Answer:  "**Always** isolate the supply first.\nSources: Electrical Manual",
			Sources: []string{"Electrical Manual"},
		}
		got := p.Process(context.Background(), in)
		want := "*Always* isolate the supply first.\n\n*Sources:* Electrical Manual"
		if got.Text != want {
			t.Errorf("Process() text = %q, want %q", got.Text, want)
		}
		if got.ImageURL != "" {
			t.Errorf("Process() image URL = %q, want empty", got.ImageURL)
		}
	})

	t.Run("not in documents replaces answer and drops sources", func(t *testing.T) {
		in := Input{
			Answer:  "Sorry, that isn't in our safety documents.",
			Sources: []string{"PPE Manual"},
		}
		got := p.Process(context.Background(), in)
		if got.Text != canonical {
			t.Errorf("Process() text = %q, want canonical message", got.Text)
		}
		if len(got.Sources) != 0 {
			t.Errorf("Process() sources = %v, want none", got.Sources)
		}
	})

	t.Run("fallback image hook fires when requested", func(t *testing.T) {
		called := false
		in := Input{
			Answer:         "Use a full-face shield when grinding.",
			Sources:        []string{"PPE Manual"},
			ImageRequested: true,
			FallbackImage: func(context.Context) string {
				called = true
				return "https://example.com/shield.png"
			},
		}
		got := p.Process(context.Background(), in)
		if !called {
			t.Fatal("fallback image hook was not called")
		}
		if got.ImageURL != "https://example.com/shield.png" {
			t.Errorf("Process() image URL = %q", got.ImageURL)
		}
		if !strings.Contains(got.Text, "full-face shield") {
			t.Errorf("Process() text = %q, want answer text preserved", got.Text)
		}
	})

	t.Run("inline image marker stripped from text", func(t *testing.T) {
		in := Input{
			Answer: "Wear a harness when working at height.\n" +
				ImageMarkerPrefix + "https://example.com/harness.png",
			Sources: []string{"Working at Height"},
		}
		got := p.Process(context.Background(), in)
		if got.ImageURL != "https://example.com/harness.png" {
			t.Errorf("Process() image URL = %q", got.ImageURL)
		}
		if strings.Contains(got.Text, ImageMarkerPrefix) || strings.Contains(got.Text, "https://") {
			t.Errorf("Process() text still carries image housekeeping: %q", got.Text)
		}
	})

	t.Run("over-limit answer trimmed", func(t *testing.T) {
		short := NewProcessor(canonical, 60)
		in := Input{Answer: "First rule applies. Second rule applies. Third rule goes on much longer than allowed."}
		got := short.Process(context.Background(), in)
		if len(got.Text) > 60 {
			t.Errorf("Process() text length = %d, want <= 60", len(got.Text))
		}
		if !strings.HasSuffix(got.Text, ".") {
			t.Errorf("Process() text = %q, want sentence ending", got.Text)
		}
	})
}
