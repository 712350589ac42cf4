package export

import (
	"strings"
	"testing"
	"time"
)

func TestRenderReportHTML(t *testing.T) {
	due := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	data := TemplateData{
		Title:       "Library Catalogue",
		GeneratedAt: time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC),
		Books: []TemplateBook{
			{Title: "Dune", Author: "Frank Herbert", Reserved: true, Holder: "Ada", DueDate: due},
			{Title: "Emma", Author: "Jane Austen"},
		},
		Notices: []TemplateNotice{
			{Title: "Closed Friday", Content: "Maintenance work.", Date: "2026-03-06"},
		},
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		t.Fatalf("RenderReportHTML: %v", err)
	}

	for _, want := range []string{
		"Library Catalogue",
		"Dune",
		"Reserved by Ada",
		"Mar 14, 2026",
		"Available",
		"Closed Friday",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered report missing %q", want)
		}
	}
}

func TestRenderReportHTMLEscapesContent(t *testing.T) {
	html, err := RenderReportHTML(TemplateData{
		Title: "Report",
		Books: []TemplateBook{{Title: "<script>alert(1)</script>", Author: "x"}},
	})
	if err != nil {
		t.Fatalf("RenderReportHTML: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("book title not escaped")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Library Catalogue", "Library-Catalogue"},
		{"weird/:*chars", "weirdchars"},
		{"", "report"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
