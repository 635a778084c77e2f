package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/morav/folio-backend/internal/domain"
)

const (
	frontMatterDelim = "---"
	maxChunkRunes    = 1800
)

// itemFrontMatter is the YAML header of one content file.
type itemFrontMatter struct {
	Slug        string   `yaml:"slug"`
	ContentType string   `yaml:"content_type"`
	Title       string   `yaml:"title"`
	Company     string   `yaml:"company"`
	Role        string   `yaml:"role"`
	Period      string   `yaml:"period"`
	Tags        []string `yaml:"tags"`
	Summary     string   `yaml:"summary"`
	UIVisible   *bool    `yaml:"ui_visible"`
}

// LoadContentDir reads every .md file under dir into items and chunks. Each
// file is YAML front matter followed by a markdown body; the body is split
// into chunks on top-level headings, then by size.
func LoadContentDir(dir string) ([]domain.ContentItem, []domain.ContentChunk, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read content dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var items []domain.ContentItem
	var chunks []domain.ContentChunk
	seen := map[string]string{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", name, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, fmt.Errorf("stat %s: %w", name, err)
		}
		item, body, err := parseContentFile(raw, info.ModTime())
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		if prev, ok := seen[item.Slug]; ok {
			return nil, nil, fmt.Errorf("%s: slug %q already defined in %s", name, item.Slug, prev)
		}
		seen[item.Slug] = name

		items = append(items, item)
		for i, text := range splitBody(body) {
			chunks = append(chunks, domain.ContentChunk{
				Slug:        item.Slug,
				ChunkIndex:  i,
				ContentType: item.ContentType,
				Section:     sectionTitle(text),
				Text:        text,
				TextHash:    shortHash(text),
				UpdatedAt:   item.UpdatedAt,
			})
		}
	}
	return items, chunks, nil
}

func parseContentFile(raw []byte, modTime time.Time) (domain.ContentItem, string, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return domain.ContentItem{}, "", fmt.Errorf("missing front matter")
	}
	rest := text[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		return domain.ContentItem{}, "", fmt.Errorf("unterminated front matter")
	}
	header := rest[:end]
	body := strings.TrimSpace(rest[end+len(frontMatterDelim)+1:])
	body = strings.TrimPrefix(body, "\n")

	var fm itemFrontMatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return domain.ContentItem{}, "", fmt.Errorf("parse front matter: %w", err)
	}
	if strings.TrimSpace(fm.Slug) == "" {
		return domain.ContentItem{}, "", fmt.Errorf("front matter missing slug")
	}
	ct, ok := domain.ParseContentType(fm.ContentType)
	if !ok {
		return domain.ContentItem{}, "", fmt.Errorf("unknown content_type %q", fm.ContentType)
	}
	if strings.TrimSpace(fm.Title) == "" {
		return domain.ContentItem{}, "", fmt.Errorf("front matter missing title")
	}

	uiVisible := ct.IsMain()
	if fm.UIVisible != nil {
		uiVisible = *fm.UIVisible
	}
	item := domain.ContentItem{
		Slug:        strings.TrimSpace(fm.Slug),
		ContentType: ct,
		Title:       strings.TrimSpace(fm.Title),
		Company:     strings.TrimSpace(fm.Company),
		Role:        strings.TrimSpace(fm.Role),
		Period:      strings.TrimSpace(fm.Period),
		Tags:        fm.Tags,
		Summary:     strings.TrimSpace(fm.Summary),
		UIVisible:   uiVisible,
		UpdatedAt:   modTime.UTC(),
		SourceHash:  shortHash(text),
	}
	return item, body, nil
}

// splitBody cuts a markdown body into chunks: first on "# " and "## "
// headings, then oversized sections on blank lines so no chunk exceeds
// maxChunkRunes.
func splitBody(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	var sections []string
	current := strings.Builder{}
	for _, line := range strings.Split(body, "\n") {
		if isSectionHeading(line) && current.Len() > 0 {
			sections = append(sections, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sections = append(sections, s)
	}

	var out []string
	for _, section := range sections {
		out = append(out, splitBySize(section)...)
	}
	return out
}

func splitBySize(section string) []string {
	if len([]rune(section)) <= maxChunkRunes {
		return []string{section}
	}
	var out []string
	current := strings.Builder{}
	for _, para := range strings.Split(section, "\n\n") {
		if current.Len() > 0 && len([]rune(current.String()+para)) > maxChunkRunes {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(para)
		current.WriteString("\n\n")
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isSectionHeading(line string) bool {
	return strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ")
}

func sectionTitle(chunk string) string {
	line, _, _ := strings.Cut(chunk, "\n")
	line = strings.TrimSpace(line)
	if !isSectionHeading(line) {
		return ""
	}
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}

func shortHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}
