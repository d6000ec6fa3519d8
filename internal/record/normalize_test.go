package record

import (
	"strings"
	"testing"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	got := Normalize("  Hello\t\tWorld \n again  ")
	want := "hello world again"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalizeLowercases(t *testing.T) {
	if got := Normalize("MiXeD Case TEXT"); got != "mixed case text" {
		t.Errorf("Normalize() = %q", got)
	}
}

func TestNormalizeStripsMarkdownStructure(t *testing.T) {
	plain := Normalize("The answer is to restart the service.")
	formatted := Normalize("# The answer\n\nis to **restart** the _service_.")
	if plain != formatted {
		t.Errorf("formatting-only difference survived normalization:\n plain    = %q\n formatted = %q", plain, formatted)
	}
}

func TestNormalizeListMarkers(t *testing.T) {
	got := Normalize("- first item\n- second item")
	if strings.Contains(got, "-") {
		t.Errorf("list markers survived: %q", got)
	}
	if !strings.Contains(got, "first item") || !strings.Contains(got, "second item") {
		t.Errorf("list content lost: %q", got)
	}
}

func TestStripMarkdownKeepsCodeBlocks(t *testing.T) {
	got := StripMarkdown("```go\nfunc main() {}\n```")
	if !strings.Contains(got, "func main() {}") {
		t.Errorf("code block content lost: %q", got)
	}
}

func TestStripMarkdownSeparatesParagraphs(t *testing.T) {
	got := Normalize("first paragraph\n\nsecond paragraph")
	// Adjacent paragraphs must not fuse into one token.
	if strings.Contains(got, "paragraphsecond") {
		t.Errorf("paragraphs fused: %q", got)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize(""); got != "" {
		t.Errorf("Normalize(\"\") = %q", got)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("one two three")
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Errorf("Tokens() = %v", got)
	}
	if got := Tokens(""); len(got) != 0 {
		t.Errorf("Tokens(\"\") = %v", got)
	}
}
