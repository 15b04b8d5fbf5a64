package markdown

import (
	"regexp"
	"strings"
	"testing"
)

func TestRenderBlockPlaceholder(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t\n  \n"} {
		if got := RenderBlock(in); got != "<p>—</p>" {
			t.Errorf("RenderBlock(%q) = %q, want placeholder paragraph", in, got)
		}
	}
}

func TestRenderBlockParagraph(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single line", "hello", "<p>hello</p>"},
		{"lines joined with br", "first\n\n  second  \nthird", "<p>first<br>second<br>third</p>"},
		{"mixed bullets and text", "- a\nplain", "<p>- a<br>plain</p>"},
		{"escaped", `a < b & "c"`, "<p>a &lt; b &amp; &#34;c&#34;</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderBlock(tt.in); got != tt.want {
				t.Errorf("RenderBlock(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenderBlockEscapesScript(t *testing.T) {
	for _, in := range []string{"<script>a & b", "- <script>a & b"} {
		got := RenderBlock(in)
		if strings.Contains(got, "<script>") {
			t.Errorf("RenderBlock(%q) leaked a raw tag: %q", in, got)
		}
		if !strings.Contains(got, "&lt;script&gt;a &amp; b") {
			t.Errorf("RenderBlock(%q) = %q, want escaped content", in, got)
		}
	}
}

func TestRenderBlockFlatList(t *testing.T) {
	got := RenderBlock("- one\n* two\n-three")
	want := "<ul><li>one</li><li>two</li><li>three</li></ul>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderBlockNesting(t *testing.T) {
	in := "- a\n  - b\n    - c\n  - d\n- e"
	got := RenderBlock(in)
	want := "<ul><li>a<ul><li>b<ul><li>c</li></ul></li><li>d</li></ul></li><li>e</li></ul>"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
	assertWellFormed(t, got)
}

func TestRenderBlockDepthClamped(t *testing.T) {
	got := RenderBlock("- a\n  - b\n    - c\n        - deep")
	want := "<ul><li>a<ul><li>b<ul><li>c</li><li>deep</li></ul></li></ul></li></ul>"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
	assertWellFormed(t, got)
}

func TestRenderBlockBaseIndent(t *testing.T) {
	// Common indentation is removed; tabs count as two spaces.
	got := RenderBlock("    - a\n    \t- b\n    - c")
	want := "<ul><li>a<ul><li>b</li></ul></li><li>c</li></ul>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderBlockOscillatingLevels(t *testing.T) {
	inputs := []string{
		"- a\n  - b\n- c\n    - d\n  - e\n- f",
		"  - a\n- b",
		"- a\n    - b\n    - c\n- d\n  - e",
	}
	for _, in := range inputs {
		assertWellFormed(t, RenderBlock(in))
	}
}

func TestRenderBlockCheckboxes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"- [x] done", "<ul><li>☑ done</li></ul>"},
		{"- [X] done", "<ul><li>☑ done</li></ul>"},
		{"- [ ] todo", "<ul><li>☐ todo</li></ul>"},
		{"- [ ]    spaced", "<ul><li>☐ spaced</li></ul>"},
		{"- [y] other", "<ul><li>[y] other</li></ul>"},
		{"-  [x] two spaces", "<ul><li> [x] two spaces</li></ul>"},
	}

	for _, tt := range tests {
		if got := RenderBlock(tt.in); got != tt.want {
			t.Errorf("RenderBlock(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeField(t *testing.T) {
	blank := "  \n "
	value := "  keep me "
	tests := []struct {
		name string
		in   *string
		want string
	}{
		{"nil", nil, Placeholder},
		{"blank", &blank, Placeholder},
		{"trimmed", &value, "keep me"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeField(tt.in); got != tt.want {
				t.Errorf("NormalizeField() = %q, want %q", got, tt.want)
			}
		})
	}
}

var tagPattern = regexp.MustCompile(`</?(ul|li)>`)

// assertWellFormed checks that ul/li tags balance and that exactly one <ul>
// sits at the top level.
func assertWellFormed(t *testing.T, fragment string) {
	t.Helper()

	var stack []string
	topLevel := 0
	for _, tag := range tagPattern.FindAllString(fragment, -1) {
		name := strings.Trim(tag, "</>")
		if !strings.HasPrefix(tag, "</") {
			if len(stack) == 0 {
				if name != "ul" {
					t.Fatalf("fragment %q starts with <%s>", fragment, name)
				}
				topLevel++
			}
			stack = append(stack, name)
			continue
		}
		if len(stack) == 0 || stack[len(stack)-1] != name {
			t.Fatalf("unbalanced %s in %q (stack %v)", tag, fragment, stack)
		}
		stack = stack[:len(stack)-1]
	}

	if len(stack) != 0 {
		t.Fatalf("unclosed tags %v in %q", stack, fragment)
	}
	if topLevel != 1 {
		t.Fatalf("expected exactly one top-level <ul>, got %d in %q", topLevel, fragment)
	}
}
