package mixedcontent

import (
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("insecure image", func(t *testing.T) {
		report := Detect(`<img src="http://a.com/b.png">`)

		if !report.HasIssues {
			t.Fatal("expected an issue for an insecure image")
		}

		if len(report.Issues) != 1 {
			t.Fatalf("expected 1 issue, got %d", len(report.Issues))
		}

		if report.Issues[0].Type != "image" {
			t.Errorf("issue type = %s, want image", report.Issues[0].Type)
		}

		if report.Issues[0].URL != "http://a.com/b.png" {
			t.Errorf("issue URL = %s, want http://a.com/b.png", report.Issues[0].URL)
		}
	})

	t.Run("all tag types", func(t *testing.T) {
		html := `
			<img class="cover" src='http://cdn.example/cover.jpg'>
			<script src="http://cdn.example/app.js"></script>
			<link rel="stylesheet" href="http://cdn.example/site.css">
			<iframe src="http://embed.example/player"></iframe>
			<form method="post" action="http://example.com/subscribe"></form>
		`

		report := Detect(html)

		if len(report.Issues) != 5 {
			t.Fatalf("expected 5 issues, got %d: %+v", len(report.Issues), report.Issues)
		}

		types := make(map[string]bool)
		for _, issue := range report.Issues {
			types[issue.Type] = true
		}

		for _, want := range []string{"image", "script", "link", "iframe", "form"} {
			if !types[want] {
				t.Errorf("missing issue type %s", want)
			}
		}
	})

	t.Run("clean markup", func(t *testing.T) {
		report := Detect(`<img src="https://a.com/b.png"><p>visit http://example.com</p>`)

		if report.HasIssues {
			t.Errorf("expected no issues, got %+v", report.Issues)
		}
	})

	t.Run("empty document", func(t *testing.T) {
		if report := Detect(""); report.HasIssues {
			t.Error("empty document should have no issues")
		}
	})
}

func TestFix(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("rewrites attributes", func(t *testing.T) {
		html := `<img src="http://a.com/b.png"><a href='http://a.com'>x</a><form action=http://a.com/go>`

		fixed := Fix(html)

		if strings.Contains(fixed, `src="http://`) || strings.Contains(fixed, `href='http://`) {
			t.Errorf("attributes not rewritten: %s", fixed)
		}

		if !strings.Contains(fixed, `src="https://a.com/b.png"`) {
			t.Errorf("expected https image source, got %s", fixed)
		}

		if !strings.Contains(fixed, `action=https://a.com/go`) {
			t.Errorf("expected https form action, got %s", fixed)
		}
	})

	t.Run("rewrites css url()", func(t *testing.T) {
		css := `body { background: url( "http://a.com/bg.png" ); } .hero { background: url(http://a.com/h.png); }`

		fixed := Fix(css)

		if strings.Contains(fixed, "http://") {
			t.Errorf("css url() not rewritten: %s", fixed)
		}
	})

	t.Run("leaves visible text alone", func(t *testing.T) {
		html := `<p>read more at http://example.com</p>`

		if Fix(html) != html {
			t.Error("plain text http:// should not be rewritten")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		html := `<img src="http://a.com/b.png"><link href='http://a.com/s.css'><div style="background:url(http://a.com/x.png)">`

		once := Fix(html)
		twice := Fix(once)

		if once != twice {
			t.Errorf("Fix is not idempotent:\nonce:  %s\ntwice: %s", once, twice)
		}
	})
}
