package adapter

import (
	"strings"
	"testing"
	"time"

	kit "remindbot/internal/transport"
)

func TestRenderEmbed(t *testing.T) {
	t.Parallel()
	e := kit.Embed{
		AuthorName:  "Alice <dev>",
		Description: "check the <servers>",
		FooterText:  "reminder from",
		Timestamp:   time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}

	got := renderEmbed("lead-in", e)
	if !strings.HasPrefix(got, "lead-in\n\n") {
		t.Fatalf("lead-in missing:\n%s", got)
	}
	if !strings.Contains(got, "<b>Alice &lt;dev&gt;</b>") {
		t.Fatalf("author not rendered bold/escaped:\n%s", got)
	}
	if !strings.Contains(got, "check the &lt;servers&gt;") {
		t.Fatalf("description not escaped:\n%s", got)
	}
	if !strings.Contains(got, "reminder from Mar 1, 2026 12:30 UTC") {
		t.Fatalf("footer/timestamp missing:\n%s", got)
	}

	// No lead-in: body starts with the author line.
	if got := renderEmbed("", e); !strings.HasPrefix(got, "<b>") {
		t.Fatalf("unexpected prefix without lead-in:\n%s", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	if got := splitText("short", 100, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short input split: %v", got)
	}

	long := strings.Repeat("aaaa aaaa\n", 30) // 300 runes
	parts := splitText(long, 100, "")
	if len(parts) < 3 {
		t.Fatalf("parts = %d, want >= 3", len(parts))
	}
	for i, p := range parts {
		if len([]rune(p)) > 100 {
			t.Fatalf("part %d exceeds limit: %d runes", i, len([]rune(p)))
		}
		if strings.HasSuffix(p, "\n") {
			t.Fatalf("part %d has trailing newline", i)
		}
	}

	// No newline at all still splits hard at the limit.
	hard := strings.Repeat("x", 250)
	parts = splitText(hard, 100, "")
	if len(parts) != 3 {
		t.Fatalf("hard split parts = %d, want 3", len(parts))
	}
}

func TestSplitTextDoesNotCutHTMLMarkup(t *testing.T) {
	t.Parallel()

	// Place a tag and an entity exactly across the split boundary; neither
	// may be severed in HTML mode.
	body := strings.Repeat("x", 98) + "<b>bold</b>" + strings.Repeat("y", 40)
	for _, p := range splitText(body, 100, "HTML") {
		if n := strings.Count(p, "<"); n != strings.Count(p, ">") {
			t.Fatalf("chunk severs a tag: %q", p)
		}
	}

	body = strings.Repeat("x", 98) + "&lt;" + strings.Repeat("y", 40)
	for _, p := range splitText(body, 100, "HTML") {
		if i := strings.IndexRune(p, '&'); i != -1 && !strings.ContainsRune(p[i:], ';') {
			t.Fatalf("chunk severs an entity: %q", p)
		}
	}

	// Plain mode keeps hard cuts.
	body = strings.Repeat("x", 98) + "<b>z</b>" + strings.Repeat("y", 40)
	if parts := splitText(body, 100, ""); len([]rune(parts[0])) != 100 {
		t.Fatalf("plain-mode first chunk = %d runes, want 100", len([]rune(parts[0])))
	}
}
