package ingestion

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/morav/folio-backend/internal/domain"
)

func writeContentFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadContentDirParsesFrontMatter(t *testing.T) {
	dir := t.TempDir()
	writeContentFile(t, dir, "guardtime-po.md", strings.Join([]string{
		"---",
		"slug: guardtime-po",
		"content_type: experience",
		"title: Product Owner at Guardtime",
		"company: Guardtime",
		"role: Product Owner",
		"period: 2021-2024",
		"tags: [security, timestamping]",
		"summary: Owned the timestamping product line.",
		"---",
		"",
		"Joined to take over the KSI product.",
		"",
		"## Shipping the SDK",
		"",
		"Rebuilt the client SDK release process.",
	}, "\n"))

	items, chunks, err := LoadContentDir(dir)
	if err != nil {
		t.Fatalf("LoadContentDir: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items: got=%d", len(items))
	}
	item := items[0]
	if item.Slug != "guardtime-po" || item.ContentType != domain.ContentTypeExperience {
		t.Fatalf("item: got=%+v", item)
	}
	if item.Company != "Guardtime" || item.Period != "2021-2024" {
		t.Fatalf("item fields: got=%+v", item)
	}
	if !item.UIVisible {
		t.Fatalf("experience items default visible")
	}
	if len(item.SourceHash) != 16 {
		t.Fatalf("source hash: got=%q", item.SourceHash)
	}

	if len(chunks) != 2 {
		t.Fatalf("chunks: got=%d %v", len(chunks), chunks)
	}
	if chunks[0].ChunkIndex != 0 || chunks[0].Section != "" {
		t.Fatalf("chunk 0: got=%+v", chunks[0])
	}
	if chunks[1].Section != "Shipping the SDK" {
		t.Fatalf("chunk 1 section: got=%q", chunks[1].Section)
	}
	if chunks[1].VectorID() != "chunk:guardtime-po:1" {
		t.Fatalf("vector id: got=%q", chunks[1].VectorID())
	}
}

func TestLoadContentDirVisibilityDefaults(t *testing.T) {
	dir := t.TempDir()
	writeContentFile(t, dir, "about-me.md", strings.Join([]string{
		"---",
		"slug: about-me",
		"content_type: background",
		"title: About me",
		"---",
		"Grew up in Tartu.",
	}, "\n"))
	writeContentFile(t, dir, "stealth.md", strings.Join([]string{
		"---",
		"slug: stealth",
		"content_type: project",
		"title: Stealth project",
		"ui_visible: false",
		"---",
		"Not announced yet.",
	}, "\n"))

	items, _, err := LoadContentDir(dir)
	if err != nil {
		t.Fatalf("LoadContentDir: %v", err)
	}
	bySlug := map[string]domain.ContentItem{}
	for _, item := range items {
		bySlug[item.Slug] = item
	}
	if bySlug["about-me"].UIVisible {
		t.Fatalf("background items default hidden")
	}
	if bySlug["stealth"].UIVisible {
		t.Fatalf("explicit ui_visible: false must win over the project default")
	}
}

func TestLoadContentDirRejectsDuplicateSlug(t *testing.T) {
	dir := t.TempDir()
	file := strings.Join([]string{
		"---",
		"slug: dup",
		"content_type: project",
		"title: Duplicate",
		"---",
		"Body.",
	}, "\n")
	writeContentFile(t, dir, "a.md", file)
	writeContentFile(t, dir, "b.md", file)

	_, _, err := LoadContentDir(dir)
	if err == nil || !strings.Contains(err.Error(), `slug "dup"`) {
		t.Fatalf("want duplicate slug error, got=%v", err)
	}
}

func TestLoadContentDirRejectsBadHeader(t *testing.T) {
	cases := map[string]string{
		"no front matter": "Just a body.",
		"unknown type":    "---\nslug: x\ncontent_type: novel\ntitle: X\n---\nBody.",
		"missing slug":    "---\ncontent_type: project\ntitle: X\n---\nBody.",
		"missing title":   "---\nslug: x\ncontent_type: project\n---\nBody.",
		"unterminated fm": "---\nslug: x\ncontent_type: project\ntitle: X\nBody.",
	}
	for name, content := range cases {
		dir := t.TempDir()
		writeContentFile(t, dir, "item.md", content)
		if _, _, err := LoadContentDir(dir); err == nil {
			t.Fatalf("%s: want error", name)
		}
	}
}

func TestSplitBodyTopLevelHeadings(t *testing.T) {
	body := "# What I did\n\nOwned the product end to end.\n\n# How I work\n\nWritten notes over meetings."
	chunks := splitBody(body)
	if len(chunks) != 2 {
		t.Fatalf("chunks: got=%d want=2\n%q", len(chunks), chunks)
	}
	if got := sectionTitle(chunks[0]); got != "What I did" {
		t.Fatalf("section 0: got=%q", got)
	}
	if got := sectionTitle(chunks[1]); got != "How I work" {
		t.Fatalf("section 1: got=%q", got)
	}
}

func TestSplitBodySizeLimit(t *testing.T) {
	para := strings.Repeat("word ", 200)
	body := "## Long section\n\n" + para + "\n\n" + para + "\n\n" + para
	chunks := splitBody(body)
	if len(chunks) < 2 {
		t.Fatalf("oversized section should split, got=%d chunks", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c)); n > maxChunkRunes {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, n)
		}
	}
}
