package letter

import "time"

// Merge applies a partial update and resolved media URLs to an existing
// record and returns the merged copy. The input record is not mutated.
//
// Rules:
//   - A nil text field preserves the stored value; a non-nil value overrides
//     it, including the empty string (intentional clear).
//   - A nil media URL preserves the stored value; a non-nil one overrides it.
//   - AssetURL is monotonic: it is only ever replaced, never cleared.
//   - UpdatedAt is refreshed on every merge; CreatedAt and ID never change.
func Merge(existing *Record, upd Update, media MediaURLs, now time.Time) *Record {
	rec := *existing

	applyText(&rec.Title, upd.Title)
	applyText(&rec.Story, upd.Story)
	applyText(&rec.NarrationScript, upd.NarrationScript)
	applyText(&rec.Mood, upd.Mood)

	applyURL(&rec.ImageURL, media.Image)
	applyURL(&rec.AssetURL, media.Asset)
	applyURL(&rec.NarrationURL, media.Narration)
	applyURL(&rec.MusicURL, media.Music)

	if media.PhotoTakenAt != nil {
		rec.PhotoTakenAt = media.PhotoTakenAt.UTC().Format(time.RFC3339)
	}

	rec.UpdatedAt = now
	return &rec
}

func applyText(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// applyURL overrides dst only when a non-empty URL was resolved. Media
// fields cannot be cleared through an update; replacing the underlying blob
// is the only way they change.
func applyURL(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}
