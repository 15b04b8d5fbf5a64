package status

import (
	"strings"
	"testing"
	"time"
)

func fixedCodec(day string) *Codec {
	ts, _ := time.Parse(DateLayout, day)
	return &Codec{Now: func() time.Time { return ts }}
}

func TestBuildBlock(t *testing.T) {
	c := fixedCodec("2026-03-04")
	got := c.BuildBlock("<p>ok</p>", "3/4 (75%)")
	want := strings.Join([]string{
		StartMarker,
		"<p><strong>Summary:</strong></p>",
		"<p>ok</p>",
		"<p><strong>Progress:</strong> 3/4 (75%)</p>",
		"<p><strong>Last updated:</strong> 2026-03-04</p>",
		EndMarker,
	}, "\n")
	if got != want {
		t.Errorf("BuildBlock() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildBlockEscapesProgressOnly(t *testing.T) {
	c := fixedCodec("2026-03-04")
	got := c.BuildBlock("<ul><li>x</li></ul>", "<b>1</b>")
	if !strings.Contains(got, "<ul><li>x</li></ul>") {
		t.Error("summary HTML should not be re-escaped")
	}
	if !strings.Contains(got, "&lt;b&gt;1&lt;/b&gt;") {
		t.Errorf("progress should be escaped, got %q", got)
	}
}

func TestMergeAppendsWhenNoBlock(t *testing.T) {
	c := fixedCodec("2026-03-04")
	desc := ManagedMarker + "\n\n<p>Goal</p>\n\n\n"
	got := c.Merge(desc, "<p>s</p>", "1/2 (50%)")

	want := ManagedMarker + "\n\n<p>Goal</p>\n\n" + c.BuildBlock("<p>s</p>", "1/2 (50%)") + "\n"
	if got != want {
		t.Errorf("Merge() =\n%q\nwant\n%q", got, want)
	}
}

func TestMergeReplacesExistingBlock(t *testing.T) {
	c := fixedCodec("2026-03-04")
	desc := "<p>before</p>\n\n" + c.BuildBlock("<p>old</p>", "0/1 (0%)") + "\n\n  <p>after</p>\n"

	got := c.Merge(desc, "<p>new</p>", "1/1 (100%)")
	want := "<p>before</p>\n" + c.BuildBlock("<p>new</p>", "1/1 (100%)") + "\n<p>after</p>\n"
	if got != want {
		t.Errorf("Merge() =\n%q\nwant\n%q", got, want)
	}
	if strings.Contains(got, "old") {
		t.Error("old summary should be gone")
	}
}

// A start marker without an end marker is not repaired: the block is
// appended, and the next merge splits at the stray marker.
func TestMergeDanglingStartMarker(t *testing.T) {
	c := fixedCodec("2026-03-04")
	desc := ManagedMarker + "\nintro\n" + StartMarker + "\nhuman notes"

	first := c.Merge(desc, "<p>a</p>", "1/2 (50%)")
	if n := CountBlocks(first); n != 2 {
		t.Fatalf("first merge: CountBlocks = %d, want 2", n)
	}
	if !strings.Contains(first, "human notes") {
		t.Error("first merge should keep the text after the stray marker")
	}

	second := c.Merge(first, "<p>b</p>", "2/2 (100%)")
	if n := CountBlocks(second); n != 1 {
		t.Errorf("second merge: CountBlocks = %d, want 1", n)
	}
	if strings.Contains(second, "human notes") {
		t.Error("second merge replaces everything from the stray marker to the end marker")
	}
	if !strings.HasPrefix(second, ManagedMarker+"\nintro\n"+StartMarker) {
		t.Errorf("text before the stray marker changed:\n%s", second)
	}
}

func TestMergeIdempotent(t *testing.T) {
	descriptions := []string{
		"",
		ManagedMarker,
		ManagedMarker + "\n\n<h3>Goal</h3>\n<p>Ship it</p>",
		"<p>human text</p>\n" + StartMarker + "\nstale\n" + EndMarker + "\n<p>tail</p>",
		"<p>only a start</p>\n" + StartMarker + "\n<p>dangling</p>",
		"<p>end first</p>\n" + EndMarker + "\n<p>middle</p>",
	}

	for _, d := range descriptions {
		first := fixedCodec("2026-01-01").Merge(d, "<p>S1</p>", "1/3 (33%)")
		second := fixedCodec("2026-01-02").Merge(first, "<p>S2</p>", "2/3 (67%)")
		third := fixedCodec("2026-01-02").Merge(second, "<p>S2</p>", "2/3 (67%)")

		if n := CountBlocks(second); n != 1 {
			t.Errorf("after two merges of %q: %d blocks, want 1\n%s", d, n, second)
		}
		if second != third {
			t.Errorf("merge with identical inputs changed the description:\n%q\n%q", second, third)
		}
		if outsideBlock(first) != outsideBlock(second) {
			t.Errorf("content outside the block changed:\n%q\n%q", outsideBlock(first), outsideBlock(second))
		}
		if !strings.Contains(second, "<p>S2</p>") || strings.Contains(second, "<p>S1</p>") {
			t.Errorf("block should carry the latest summary: %q", second)
		}
	}
}

func TestMergePreservesSurroundingContent(t *testing.T) {
	c := fixedCodec("2026-03-04")
	before := ManagedMarker + "\n<p>Goal: <em>keep</em> this</p>"
	after := "<p>Notes written by a human.</p>\n<p>More notes</p>"
	desc := before + "\n" + c.BuildBlock("x", "y") + "\n" + after + "\n"

	got := c.Merge(desc, "<p>z</p>", "1/1 (100%)")
	if !strings.HasPrefix(got, before+"\n"+StartMarker) {
		t.Errorf("prefix not preserved: %q", got)
	}
	if !strings.HasSuffix(got, EndMarker+"\n"+after+"\n") {
		t.Errorf("suffix not preserved: %q", got)
	}
}

func TestIsManaged(t *testing.T) {
	if IsManaged("<p>plain</p>") {
		t.Error("plain description should not be managed")
	}
	if !IsManaged("<p>x</p>\n" + ManagedMarker + "\n") {
		t.Error("marker anywhere should make a description managed")
	}
}

func TestRatioAndPercent(t *testing.T) {
	tests := []struct {
		done, total int
		ratio       float64
		percent     int
		progress    string
	}{
		{3, 4, 0.75, 75, "3/4 (75%)"},
		{0, 0, 0, 0, "—"},
		{5, -1, 0, 0, "—"},
		{7, 5, 1, 100, "7/5 (100%)"},
		{-2, 5, 0, 0, "-2/5 (0%)"},
		{1, 8, 0.125, 12, "1/8 (12%)"},
		{1, 3, 1.0 / 3, 33, "1/3 (33%)"},
	}

	for _, tt := range tests {
		r := Ratio(tt.done, tt.total)
		if r != tt.ratio {
			t.Errorf("Ratio(%d, %d) = %v, want %v", tt.done, tt.total, r, tt.ratio)
		}
		p := Percent(r)
		if p != tt.percent {
			t.Errorf("Percent(%v) = %d, want %d", r, p, tt.percent)
		}
		if got := ProgressText(tt.done, tt.total, p); got != tt.progress {
			t.Errorf("ProgressText(%d, %d) = %q, want %q", tt.done, tt.total, got, tt.progress)
		}
	}
}

// outsideBlock strips the status block and boundary whitespace so surrounding
// content can be compared.
func outsideBlock(d string) string {
	before, after, ok := splitBlock(d)
	if !ok {
		return d
	}
	return strings.TrimSpace(before) + "|" + strings.TrimSpace(after)
}
