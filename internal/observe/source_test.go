package observe

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func firstNode(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	sel := doc.Find("[data-id]").First()
	require.Equal(t, 1, sel.Length(), "fixture must contain a [data-id] node")
	return sel
}

func TestDeriveSource(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "data_url_wins_over_img",
			html: `<li data-id="1" data-url="https://site/full.jpg"><img src="https://site/thumb.jpg"></li>`,
			want: "https://site/full.jpg",
		},
		{
			name: "data_full_url",
			html: `<li data-id="1" data-full-url=" https://site/full.jpg "></li>`,
			want: "https://site/full.jpg",
		},
		{
			name: "img_src",
			html: `<li data-id="1"><div class="thumbnail"><img src="https://site/thumb.jpg"></div></li>`,
			want: "https://site/thumb.jpg",
		},
		{
			name: "srcset_first_entry",
			html: `<li data-id="1"><img srcset="https://site/a-300.jpg 300w, https://site/a-600.jpg 600w"></li>`,
			want: "https://site/a-300.jpg",
		},
		{
			name: "background_image_on_node",
			html: `<li data-id="1" style="background-image: url('https://site/bg.jpg')"></li>`,
			want: "https://site/bg.jpg",
		},
		{
			name: "background_image_on_child",
			html: `<li data-id="1"><div style="background:url(https://site/bg.jpg) center"></div></li>`,
			want: "https://site/bg.jpg",
		},
		{
			name: "nothing_rendered_yet",
			html: `<li data-id="1"><div class="thumbnail"></div></li>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, deriveSource(firstNode(t, tt.html)))
		})
	}
}

func TestDeriveContext(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "aria_label_first",
			html: `<li data-id="1" aria-label="sunset.jpg" title="other"><img alt="third"></li>`,
			want: "sunset.jpg",
		},
		{
			name: "title_attribute",
			html: `<li data-id="1" title="beach-day.png"></li>`,
			want: "beach-day.png",
		},
		{
			name: "img_alt",
			html: `<li data-id="1"><img alt="team photo"></li>`,
			want: "team photo",
		},
		{
			name: "filename_element",
			html: `<li data-id="1"><div class="filename"> IMG_2041.jpeg </div></li>`,
			want: "IMG_2041.jpeg",
		},
		{
			name: "nothing",
			html: `<li data-id="1"></li>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, deriveContext(firstNode(t, tt.html)))
		})
	}
}

func TestURLHelpers(t *testing.T) {
	require.True(t, isBlobURL("blob:https://site/uuid"))
	require.True(t, isBlobURL("BLOB:https://site/uuid"))
	require.False(t, isBlobURL("https://site/a.jpg"))

	require.True(t, isAbsoluteURL("https://site/a.jpg"))
	require.False(t, isAbsoluteURL("/wp-content/a.jpg"))
}

func TestResolveURL(t *testing.T) {
	base := "https://site.example/wp-admin/upload.php"

	require.Equal(t, "https://site.example/wp-content/a.jpg", resolveURL(base, "/wp-content/a.jpg"))
	require.Equal(t, "https://site.example/wp-admin/thumb.jpg", resolveURL(base, "thumb.jpg"))
	// An already absolute ref passes through untouched.
	require.Equal(t, "https://cdn.example/a.jpg", resolveURL(base, "https://cdn.example/a.jpg"))

	require.Equal(t, "", resolveURL("", "/wp-content/a.jpg"))
	require.Equal(t, "", resolveURL("wp-admin/upload.php", "/a.jpg"))
}
