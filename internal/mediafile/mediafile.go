// Package mediafile maps uploaded media onto blob store categories, keys,
// and content types, and extracts EXIF capture dates from photos.
package mediafile

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// Blob store categories. Every uploaded or derived media blob lives under
// exactly one of these prefixes.
const (
	CategoryPhoto     = "photo"
	CategoryAsset3D   = "asset3d"
	CategoryNarration = "narration"
	CategoryMusic     = "music"
)

// MaxUploadSize bounds a single uploaded file part (50 MB).
const MaxUploadSize int64 = 50 * 1024 * 1024

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

var audioContentTypes = map[string]string{
	".wav": "audio/wav",
	".mp3": "audio/mpeg",
	".m4a": "audio/mp4",
	".ogg": "audio/ogg",
}

// ContentType returns the Content-Type to store for an upload in the given
// category, derived from the filename extension with a per-category default.
func ContentType(category, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch category {
	case CategoryPhoto:
		if ct, ok := imageContentTypes[ext]; ok {
			return ct
		}
		return "image/jpeg"
	case CategoryAsset3D:
		return "model/gltf-binary"
	case CategoryNarration, CategoryMusic:
		if ct, ok := audioContentTypes[ext]; ok {
			return ct
		}
		return "audio/wav"
	}
	return "application/octet-stream"
}

// unsafeChars matches everything outside the character set allowed in stored
// filenames. Replaced with underscores rather than rejected, since filenames
// come from end-user devices.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFilename strips directory components and replaces characters that
// are unsafe in a blob key. Returns "file" if nothing usable remains.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > 128 {
		name = name[len(name)-128:]
	}
	return name
}

// Key builds the blob key for an upload:
// {category}/{id}_{unixMillis}_{sanitizedFilename}.
func Key(category, id, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%s_%d_%s", category, id, now.UnixMilli(), SanitizeFilename(filename))
}

// PhotoTakenAt extracts the EXIF capture date from photo bytes.
// Priority: DateTimeOriginal, then CreateDate. Returns false when the photo
// carries no usable date or the metadata cannot be parsed; callers treat
// that as "no date", never as an error.
func PhotoTakenAt(data []byte) (time.Time, bool) {
	exif, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Msg("No EXIF metadata in uploaded photo")
		return time.Time{}, false
	}
	if t := exif.DateTimeOriginal(); !t.IsZero() {
		return t, true
	}
	if t := exif.CreateDate(); !t.IsZero() {
		return t, true
	}
	return time.Time{}, false
}
