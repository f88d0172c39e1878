package tgui

import "testing"

func TestEscapesAndWraps(t *testing.T) {
	t.Parallel()
	if got := B("a <b> & c").String(); got != "<b>a &lt;b&gt; &amp; c</b>" {
		t.Fatalf("B = %q", got)
	}
	if got := Code("x<y").String(); got != "<code>x&lt;y</code>" {
		t.Fatalf("Code = %q", got)
	}
}

func TestMention(t *testing.T) {
	t.Parallel()
	got := Mention("Alice <A>", 42).String()
	want := `<a href="tg://user?id=42">Alice &lt;A&gt;</a>`
	if got != want {
		t.Fatalf("Mention = %q, want %q", got, want)
	}
}

func TestJoinH(t *testing.T) {
	t.Parallel()
	if got := JoinH(" ", B("a"), I("b")).String(); got != "<b>a</b> <i>b</i>" {
		t.Fatalf("JoinH = %q", got)
	}
}
