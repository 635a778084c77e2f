package steps

import (
	"context"

	"github.com/morav/folio-backend/internal/domain"
)

// Validate filters every slug the model produced against the catalog. A slug
// survives only when it resolves to a UI-visible item; anything else is
// dropped silently, never repaired. When filtering leaves the related rail
// empty, retrieval candidates fill it. Running Validate on already-validated
// output changes nothing.
func Validate(ctx context.Context, deps Deps, out domain.AssistantOutput, candidates []string) domain.AssistantOutput {
	caps := deps.Caps.withDefaults()
	items := deps.Catalog.Snapshot(ctx)

	visible := func(slug string) bool {
		item, ok := items[slug]
		return ok && item.UIVisible
	}

	out.Related = filterRelated(ctx, deps, out.Related, visible, caps.MaxRelated)
	if len(out.Related) == 0 {
		out.Related = filterRelated(ctx, deps, fallbackRelated(candidates, len(candidates)), visible, caps.MaxRelated)
	}

	kept := out.Citations[:0:0]
	for _, c := range out.Citations {
		if _, ok := items[c.Slug]; !ok {
			deps.Log.Debug("dropping citation with unknown slug", "slug", c.Slug)
			continue
		}
		kept = append(kept, c)
	}
	out.Citations = kept

	if out.Artifacts != nil {
		out.Artifacts.RelevantExperience = filterExperience(ctx, deps, out.Artifacts.RelevantExperience, items, visible, caps.MaxRelated)
	}
	return out
}

// filterExperience validates relevant-experience entries and fills in the
// catalog metadata the client renders, so the artifact is self-contained.
func filterExperience(ctx context.Context, deps Deps, in []domain.ExperienceRef, items map[string]domain.ContentItem, visible func(string) bool, max int) []domain.ExperienceRef {
	var out []domain.ExperienceRef
	seen := map[string]bool{}
	for _, ref := range in {
		if seen[ref.Slug] {
			continue
		}
		if !visible(ref.Slug) {
			deps.Log.Debug("rejecting relevant-experience slug", "slug", ref.Slug)
			continue
		}
		item := items[ref.Slug]
		ref.Title = item.Title
		ref.Role = item.Role
		ref.Period = item.Period
		seen[ref.Slug] = true
		out = append(out, ref)
		if len(out) == max {
			break
		}
	}
	return out
}

func filterRelated(ctx context.Context, deps Deps, in []domain.RelatedItem, visible func(string) bool, max int) []domain.RelatedItem {
	var out []domain.RelatedItem
	seen := map[string]bool{}
	for _, item := range in {
		if seen[item.Slug] {
			continue
		}
		if !visible(item.Slug) {
			deps.Log.Debug("rejecting related slug", "slug", item.Slug)
			continue
		}
		seen[item.Slug] = true
		out = append(out, item)
		if len(out) == max {
			break
		}
	}
	return out
}
