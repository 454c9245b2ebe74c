package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops scripts and event handlers",
			in:   `<p onclick="steal()">Hello <b>world</b><script>alert(1)</script></p>`,
			want: `<p>Hello <b>world</b></p>`,
		},
		{
			name: "unwraps unknown elements",
			in:   `<font color="red">hi <em>there</em></font>`,
			want: `hi <em>there</em>`,
		},
		{
			name: "strips unsafe link schemes and forces rel",
			in:   `<a href="javascript:alert(1)" target="_blank" rel="opener">x</a>`,
			want: `<a target="_blank" rel="noopener noreferrer">x</a>`,
		},
		{
			name: "keeps safe links",
			in:   `<a href="https://example.com/a?b=1&amp;c=2" title="t">x</a>`,
			want: `<a href="https://example.com/a?b=1&amp;c=2" title="t">x</a>`,
		},
		{
			name: "keeps image attributes from the allow list",
			in:   `<img src="https://cdn.example.com/a.png" onerror="x()" alt="A" style="border:0">`,
			want: `<img src="https://cdn.example.com/a.png" alt="A"/>`,
		},
		{
			name: "drops comments",
			in:   `<p>a<!-- hidden -->b</p>`,
			want: `<p>ab</p>`,
		},
		{
			name: "drops iframes entirely",
			in:   `<div class="embed"><iframe src="https://evil.example"><p>fallback</p></iframe>text</div>`,
			want: `<div class="embed">text</div>`,
		},
		{
			name: "escapes text",
			in:   `1 &lt; 2`,
			want: `1 &lt; 2`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTML(tt.in))
		})
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "Title & more", Text(`<h1>Title &amp; <em>more</em></h1>`))
	assert.Equal(t, "plain title", Text("  plain \n title "))
	assert.Equal(t, "kept", Text(`kept<script>dropped()</script>`))
	assert.Equal(t, "", Text(""))
}
