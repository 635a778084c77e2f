package domain

import (
	"fmt"
	"strings"
	"time"
)

type ContentType string

const (
	ContentTypeExperience ContentType = "experience"
	ContentTypeProject    ContentType = "project"
	ContentTypeBackground ContentType = "background"
)

func ParseContentType(s string) (ContentType, bool) {
	switch ContentType(strings.ToLower(strings.TrimSpace(s))) {
	case ContentTypeExperience:
		return ContentTypeExperience, true
	case ContentTypeProject:
		return ContentTypeProject, true
	case ContentTypeBackground:
		return ContentTypeBackground, true
	default:
		return "", false
	}
}

// IsMain reports whether the type surfaces in the UI as a browsable artifact.
// Background notes only flavor answers; they must never become artifacts.
func (t ContentType) IsMain() bool {
	return t == ContentTypeExperience || t == ContentTypeProject
}

// ContentItem is one unit of background knowledge: an experience entry, a
// project, or a personal-background note. Items are produced by ingestion and
// read-only to the pipeline.
type ContentItem struct {
	Slug        string      `json:"slug"`
	ContentType ContentType `json:"content_type"`
	Title       string      `json:"title"`
	Company     string      `json:"company,omitempty"`
	Role        string      `json:"role,omitempty"`
	Period      string      `json:"period,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	UIVisible   bool        `json:"ui_visible"`
	UpdatedAt   time.Time   `json:"updated_at"`
	SourceHash  string      `json:"source_hash,omitempty"`
}

// ContentChunk is one retrievable passage belonging to exactly one item.
// ChunkIndex values for a slug are contiguous from 0.
type ContentChunk struct {
	Slug        string      `json:"slug"`
	ChunkIndex  int         `json:"chunk_index"`
	ContentType ContentType `json:"content_type"`
	Section     string      `json:"section,omitempty"`
	Text        string      `json:"text"`
	TextHash    string      `json:"text_hash,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// VectorID is the logical vector-store id of the chunk.
func (c ContentChunk) VectorID() string {
	return fmt.Sprintf("chunk:%s:%d", c.Slug, c.ChunkIndex)
}

// ItemVectorID is the logical vector-store id of an item record.
func ItemVectorID(slug string) string {
	return "item:" + slug
}

// EmbeddingPrefix builds the disambiguation prefix prepended to chunk text
// before embedding, so same-worded passages from different contexts separate
// in vector space.
func EmbeddingPrefix(item ContentItem) string {
	parts := []string{string(item.ContentType), item.Title}
	if item.Company != "" {
		parts = append(parts, item.Company)
	}
	if item.Role != "" {
		parts = append(parts, item.Role)
	}
	return strings.Join(parts, " | ") + "\n"
}

// Payload record kinds within the single collection.
const (
	RecordKindItem  = "item"
	RecordKindChunk = "chunk"
)

// Payload keys shared between ingestion and the pipeline.
const (
	PayloadKeyKind        = "kind"
	PayloadKeySlug        = "slug"
	PayloadKeyContentType = "content_type"
	PayloadKeyTitle       = "title"
	PayloadKeyCompany     = "company"
	PayloadKeyRole        = "role"
	PayloadKeyPeriod      = "period"
	PayloadKeyTags        = "tags"
	PayloadKeySummary     = "summary"
	PayloadKeyUIVisible   = "ui_visible"
	PayloadKeyUpdatedAt   = "updated_at"
	PayloadKeySourceHash  = "source_hash"
	PayloadKeyChunkIndex  = "chunk_index"
	PayloadKeySection     = "section"
	PayloadKeyText        = "text"
	PayloadKeyTextHash    = "text_hash"
)

// ItemPayload flattens an item into a vector-store payload.
func ItemPayload(item ContentItem) map[string]any {
	tags := make([]any, 0, len(item.Tags))
	for _, t := range item.Tags {
		tags = append(tags, t)
	}
	return map[string]any{
		PayloadKeyKind:        RecordKindItem,
		PayloadKeySlug:        item.Slug,
		PayloadKeyContentType: string(item.ContentType),
		PayloadKeyTitle:       item.Title,
		PayloadKeyCompany:     item.Company,
		PayloadKeyRole:        item.Role,
		PayloadKeyPeriod:      item.Period,
		PayloadKeyTags:        tags,
		PayloadKeySummary:     item.Summary,
		PayloadKeyUIVisible:   item.UIVisible,
		PayloadKeyUpdatedAt:   item.UpdatedAt.UTC().Format(time.RFC3339),
		PayloadKeySourceHash:  item.SourceHash,
	}
}

// ChunkPayload flattens a chunk into a vector-store payload. content_type is
// denormalized from the parent so retrieval can partition without lookups.
func ChunkPayload(chunk ContentChunk) map[string]any {
	return map[string]any{
		PayloadKeyKind:        RecordKindChunk,
		PayloadKeySlug:        chunk.Slug,
		PayloadKeyChunkIndex:  chunk.ChunkIndex,
		PayloadKeyContentType: string(chunk.ContentType),
		PayloadKeySection:     chunk.Section,
		PayloadKeyText:        chunk.Text,
		PayloadKeyTextHash:    chunk.TextHash,
		PayloadKeyUpdatedAt:   chunk.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ItemFromPayload rebuilds an item from a stored payload. Unknown content
// types reject the record rather than guessing.
func ItemFromPayload(payload map[string]any) (ContentItem, error) {
	if payloadString(payload, PayloadKeyKind) != RecordKindItem {
		return ContentItem{}, fmt.Errorf("payload is not an item record")
	}
	slug := payloadString(payload, PayloadKeySlug)
	if slug == "" {
		return ContentItem{}, fmt.Errorf("item payload missing slug")
	}
	ct, ok := ParseContentType(payloadString(payload, PayloadKeyContentType))
	if !ok {
		return ContentItem{}, fmt.Errorf("item %q has unknown content_type %q", slug, payloadString(payload, PayloadKeyContentType))
	}

	item := ContentItem{
		Slug:        slug,
		ContentType: ct,
		Title:       payloadString(payload, PayloadKeyTitle),
		Company:     payloadString(payload, PayloadKeyCompany),
		Role:        payloadString(payload, PayloadKeyRole),
		Period:      payloadString(payload, PayloadKeyPeriod),
		Summary:     payloadString(payload, PayloadKeySummary),
		SourceHash:  payloadString(payload, PayloadKeySourceHash),
		UIVisible:   payloadBool(payload, PayloadKeyUIVisible),
		UpdatedAt:   payloadTime(payload, PayloadKeyUpdatedAt),
	}
	if rawTags, ok := payload[PayloadKeyTags].([]any); ok {
		for _, t := range rawTags {
			if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
				item.Tags = append(item.Tags, s)
			}
		}
	}
	return item, nil
}

// ChunkFromPayload rebuilds a chunk from a stored payload.
func ChunkFromPayload(payload map[string]any) (ContentChunk, error) {
	if payloadString(payload, PayloadKeyKind) != RecordKindChunk {
		return ContentChunk{}, fmt.Errorf("payload is not a chunk record")
	}
	slug := payloadString(payload, PayloadKeySlug)
	if slug == "" {
		return ContentChunk{}, fmt.Errorf("chunk payload missing slug")
	}
	ct, ok := ParseContentType(payloadString(payload, PayloadKeyContentType))
	if !ok {
		return ContentChunk{}, fmt.Errorf("chunk %q has unknown content_type %q", slug, payloadString(payload, PayloadKeyContentType))
	}
	return ContentChunk{
		Slug:        slug,
		ChunkIndex:  payloadInt(payload, PayloadKeyChunkIndex),
		ContentType: ct,
		Section:     payloadString(payload, PayloadKeySection),
		Text:        payloadString(payload, PayloadKeyText),
		TextHash:    payloadString(payload, PayloadKeyTextHash),
		UpdatedAt:   payloadTime(payload, PayloadKeyUpdatedAt),
	}, nil
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func payloadBool(payload map[string]any, key string) bool {
	if v, ok := payload[key].(bool); ok {
		return v
	}
	return false
}

func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func payloadTime(payload map[string]any, key string) time.Time {
	raw := payloadString(payload, key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
