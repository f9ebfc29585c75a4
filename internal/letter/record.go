// Package letter defines the submission record, the single JSON document
// persisted per ornament, together with the pure merge rules that every
// write must go through.
//
// A record accretes data over its lifetime: the first submission creates it,
// later submissions and task polls each contribute a partial update. The
// merge rules guarantee that a field absent from an update never regresses
// the stored value.
package letter

import "time"

// Record is the persisted submission record, stored as JSON at
// records/{id}.json in the blob store.
type Record struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Story           string `json:"story"`
	NarrationScript string `json:"narrationScript"`
	Mood            string `json:"mood"`

	ImageURL     string `json:"imageUrl,omitempty"`
	PhotoTakenAt string `json:"photoTakenAt,omitempty"`

	SubjectDescription string `json:"subjectDescription,omitempty"`
	GenerationPrompt   string `json:"generationPrompt,omitempty"`

	// AssetURL is the generated (or uploaded) 3D asset. Its presence marks
	// the generation pipeline as complete; normal-flow writes never clear it.
	AssetURL string `json:"assetUrl,omitempty"`

	GenerationTaskID string `json:"generationTaskId,omitempty"`
	RefinementTaskID string `json:"refinementTaskId,omitempty"`

	NarrationURL string `json:"narrationUrl,omitempty"`
	MusicURL     string `json:"musicUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRecord returns a default record for a first-time submission.
func NewRecord(id string, now time.Time) *Record {
	return &Record{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MediaKind discriminates the three ways a media field can arrive in a
// submission: not at all, as an uploaded file part, or as an external URL
// supplied in a text field.
type MediaKind int

const (
	MediaUnset MediaKind = iota
	MediaUpload
	MediaExternalURL
)

// MediaInput is a tagged variant for one media field of a submission.
// Exactly one interpretation applies depending on Kind.
type MediaInput struct {
	Kind MediaKind

	// Upload
	Data        []byte
	Filename    string
	ContentType string

	// ExternalURL
	URL string
}

// UploadedMedia wraps raw uploaded bytes.
func UploadedMedia(data []byte, filename, contentType string) MediaInput {
	return MediaInput{Kind: MediaUpload, Data: data, Filename: filename, ContentType: contentType}
}

// ExternalMedia wraps a caller-supplied URL used in lieu of an upload.
func ExternalMedia(url string) MediaInput {
	return MediaInput{Kind: MediaExternalURL, URL: url}
}

// Update is the partial update carried by one submission. Text fields use
// pointer semantics: nil means "not provided" (preserve the stored value),
// a non-nil empty string is an intentional clear.
type Update struct {
	Title           *string
	Story           *string
	NarrationScript *string
	Mood            *string

	Photo     MediaInput
	Asset     MediaInput
	Narration MediaInput
	Music     MediaInput
}

// MediaURLs carries the per-field media URLs after uploads have been stored
// in the blob store. A nil entry preserves the stored value.
type MediaURLs struct {
	Image     *string
	Asset     *string
	Narration *string
	Music     *string

	// PhotoTakenAt is the EXIF capture date of a newly uploaded photo,
	// when one could be extracted.
	PhotoTakenAt *time.Time
}
