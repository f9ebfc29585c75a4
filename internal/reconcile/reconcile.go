// Package reconcile drives the submission pipeline. Every write to a record
// flows through one of two entry points:
//
//   - Reconcile: a user submission. Uploads are stored, the partial update is
//     merged, and if the record is ready for a 3D asset but has none, a
//     generation task is started.
//   - CheckTask: a status poll. Terminal tasks advance the record: a finished
//     generation task chains a refinement task, a finished refinement task has
//     its artifact downloaded and persisted.
//
// Both paths are stateless between invocations; the record in the blob store
// is the only synchronization point. Concurrent submissions for the same id
// can race read-then-write, which is tolerated: the task guard makes a
// duplicate generation task the worst case, and the last write wins.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/waywereminisce/ornament-api/internal/blobstore"
	"github.com/waywereminisce/ornament-api/internal/letter"
	"github.com/waywereminisce/ornament-api/internal/mediafile"
	"github.com/waywereminisce/ornament-api/internal/meshy"
	"github.com/waywereminisce/ornament-api/internal/subject"
)

// TaskClient is the slice of the generation API the reconciler needs.
type TaskClient interface {
	CreateTextTo3D(ctx context.Context, prompt string) (string, error)
	CreateRetexture(ctx context.Context, modelURL, stylePrompt string) (string, error)
	GetTask(ctx context.Context, kind meshy.TaskKind, id string) (*meshy.Task, error)
}

// Describer extracts the submission's subject and a modelling prompt from
// the photo and narrative.
type Describer interface {
	Describe(ctx context.Context, imageBytes []byte, mimeType, story string) (*subject.Description, error)
}

// Reconciler applies submissions and task polls to stored records.
type Reconciler struct {
	store     blobstore.Store
	tasks     TaskClient
	describer Describer

	// twoStage chains a refinement (retexture) task after the generation
	// task instead of taking the preview model as the final artifact.
	twoStage bool

	now func() time.Time
}

// New creates a Reconciler. tasks and describer may be nil, which disables
// asset acquisition; submissions then only store media and merge fields.
func New(store blobstore.Store, tasks TaskClient, describer Describer, twoStage bool) *Reconciler {
	return &Reconciler{
		store:     store,
		tasks:     tasks,
		describer: describer,
		twoStage:  twoStage,
		now:       time.Now,
	}
}

// Reconcile applies one submission to the record for id, creating it if this
// is the first submission. It stores uploaded media, merges the update, and
// kicks off asset generation when the record qualifies. The updated record is
// always persisted; enrichment failures are logged and swallowed so a flaky
// generation provider never loses a user's submission.
func (r *Reconciler) Reconcile(ctx context.Context, id string, upd letter.Update) (*letter.Record, error) {
	now := r.now()

	existing, err := r.store.GetRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", id, err)
	}
	if existing == nil {
		existing = letter.NewRecord(id, now)
		log.Info().Str("recordId", id).Msg("Creating new submission record")
	}

	media, photoBytes, photoType, err := r.storeMedia(ctx, id, upd, now)
	if err != nil {
		return nil, err
	}

	merged := letter.Merge(existing, upd, media, now)

	if r.shouldGenerate(merged) {
		r.startGeneration(ctx, merged, photoBytes, photoType)
	}

	if err := r.store.PutRecord(ctx, merged); err != nil {
		return nil, fmt.Errorf("persist record %s: %w", id, err)
	}
	return merged, nil
}

// storeMedia uploads every file part of the update and resolves external URL
// overrides, returning the media URLs for the merge. Uploaded photo bytes are
// returned so asset generation can reuse them without a round trip.
func (r *Reconciler) storeMedia(ctx context.Context, id string, upd letter.Update, now time.Time) (letter.MediaURLs, []byte, string, error) {
	var media letter.MediaURLs
	var photoBytes []byte
	var photoType string

	fields := []struct {
		input    letter.MediaInput
		category string
		dst      **string
	}{
		{upd.Photo, mediafile.CategoryPhoto, &media.Image},
		{upd.Asset, mediafile.CategoryAsset3D, &media.Asset},
		{upd.Narration, mediafile.CategoryNarration, &media.Narration},
		{upd.Music, mediafile.CategoryMusic, &media.Music},
	}

	for _, f := range fields {
		switch f.input.Kind {
		case letter.MediaUnset:
			continue
		case letter.MediaExternalURL:
			url := f.input.URL
			*f.dst = &url
		case letter.MediaUpload:
			contentType := f.input.ContentType
			if contentType == "" || contentType == "application/octet-stream" {
				contentType = mediafile.ContentType(f.category, f.input.Filename)
			}
			key := mediafile.Key(f.category, id, f.input.Filename, now)
			url, err := r.store.PutMedia(ctx, key, f.input.Data, contentType)
			if err != nil {
				return media, nil, "", fmt.Errorf("store %s upload: %w", f.category, err)
			}
			*f.dst = &url

			if f.category == mediafile.CategoryPhoto {
				photoBytes = f.input.Data
				photoType = contentType
				if taken, ok := mediafile.PhotoTakenAt(f.input.Data); ok {
					media.PhotoTakenAt = &taken
				}
			}
		}
	}
	return media, photoBytes, photoType, nil
}

// shouldGenerate reports whether the merged record is ready for asset
// generation: it has the inputs (photo + story), no asset yet, and no
// generation task already in flight.
func (r *Reconciler) shouldGenerate(rec *letter.Record) bool {
	if r.tasks == nil || r.describer == nil {
		return false
	}
	return rec.AssetURL == "" &&
		rec.GenerationTaskID == "" &&
		rec.ImageURL != "" &&
		rec.Story != ""
}

// startGeneration runs subject extraction and creates the text-to-3D task,
// recording the description, prompt, and task id on the record. Errors are
// logged, never returned: the record must persist regardless, and the next
// qualifying submission retries generation.
func (r *Reconciler) startGeneration(ctx context.Context, rec *letter.Record, photoBytes []byte, photoType string) {
	if photoBytes == nil {
		data, err := r.store.Fetch(ctx, rec.ImageURL)
		if err != nil {
			log.Warn().Err(err).Str("recordId", rec.ID).Msg("Could not fetch photo for subject extraction")
			return
		}
		photoBytes = data
		photoType = mediafile.ContentType(mediafile.CategoryPhoto, rec.ImageURL)
	}

	desc, err := r.describer.Describe(ctx, photoBytes, photoType, rec.Story)
	if err != nil {
		log.Warn().Err(err).Str("recordId", rec.ID).Msg("Subject extraction failed; submission stored without asset")
		return
	}

	prompt := desc.Prompt()
	taskID, err := r.tasks.CreateTextTo3D(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Str("recordId", rec.ID).Msg("Could not create generation task; submission stored without asset")
		return
	}

	rec.SubjectDescription = desc.Object
	rec.GenerationPrompt = prompt
	rec.GenerationTaskID = taskID
	log.Info().
		Str("recordId", rec.ID).
		Str("taskId", taskID).
		Str("object", desc.Object).
		Msg("Asset generation started")
}

// TaskStatus is the outcome of one poll, shaped for the status endpoint.
type TaskStatus struct {
	Status           string `json:"status"`
	Progress         int    `json:"progress"`
	ArtifactURL      string `json:"artifactUrl,omitempty"`
	RefinementTaskID string `json:"refinementTaskId,omitempty"`
	Error            string `json:"error,omitempty"`
}

// CheckTask polls a task and, when recordID correlates it with a stored
// record, advances the pipeline on terminal success:
//
//   - generation task finished, two-stage mode, no refinement yet: a
//     refinement task is created and recorded.
//   - final task finished, no asset yet: the artifact is downloaded, stored
//     under the record's asset category, and its URL persisted.
//
// Polls that match neither of the record's task ids report status without
// writing. An empty recordID degrades to a pure status probe against the
// generation endpoint.
func (r *Reconciler) CheckTask(ctx context.Context, taskID, recordID string) (*TaskStatus, error) {
	var rec *letter.Record
	if recordID != "" {
		loaded, err := r.store.GetRecord(ctx, recordID)
		if err != nil {
			return nil, fmt.Errorf("load record %s: %w", recordID, err)
		}
		rec = loaded
	}

	kind := meshy.KindTextTo3D
	if rec != nil && taskID == rec.RefinementTaskID {
		kind = meshy.KindRetexture
	}

	task, err := r.tasks.GetTask(ctx, kind, taskID)
	if err != nil {
		return nil, fmt.Errorf("poll task %s: %w", taskID, err)
	}

	status := &TaskStatus{Status: task.Status, Progress: task.Progress, Error: task.Error}
	if rec != nil {
		status.RefinementTaskID = rec.RefinementTaskID
		status.ArtifactURL = rec.AssetURL
	}

	if task.Status != meshy.StatusSucceeded || rec == nil {
		return status, nil
	}

	// A record that already has its artifact is final; polls must not
	// mutate it, whichever task they name.
	if rec.AssetURL != "" {
		return status, nil
	}

	switch {
	case taskID == rec.GenerationTaskID && r.twoStage && rec.RefinementTaskID == "":
		return r.startRefinement(ctx, rec, task, status)

	case r.finalTask(rec, taskID):
		return r.storeArtifact(ctx, rec, task, status)
	}
	return status, nil
}

// finalTask reports whether taskID is the task whose output becomes the
// record's artifact: the refinement task in two-stage mode, the generation
// task otherwise.
func (r *Reconciler) finalTask(rec *letter.Record, taskID string) bool {
	if r.twoStage {
		return taskID == rec.RefinementTaskID && taskID != ""
	}
	return taskID == rec.GenerationTaskID && taskID != ""
}

// startRefinement chains a retexture task off the finished preview model,
// reusing the stored generation prompt as the style prompt.
func (r *Reconciler) startRefinement(ctx context.Context, rec *letter.Record, task *meshy.Task, status *TaskStatus) (*TaskStatus, error) {
	stylePrompt := rec.GenerationPrompt
	if stylePrompt == "" {
		stylePrompt = rec.Story
	}
	refID, err := r.tasks.CreateRetexture(ctx, task.ModelURL, stylePrompt)
	if err != nil {
		return nil, fmt.Errorf("create refinement task for %s: %w", rec.ID, err)
	}

	updated := *rec
	updated.RefinementTaskID = refID
	updated.UpdatedAt = r.now()
	if err := r.store.PutRecord(ctx, &updated); err != nil {
		return nil, fmt.Errorf("persist record %s: %w", rec.ID, err)
	}

	log.Info().Str("recordId", rec.ID).Str("taskId", refID).Msg("Refinement task started")
	// Refinement starts from scratch; report the pipeline as in progress.
	return &TaskStatus{Status: meshy.StatusInProgress, Progress: 0, RefinementTaskID: refID}, nil
}

// storeArtifact downloads the finished model and persists it as the record's
// asset. Runs at most once per record in the normal flow; a crashed previous
// attempt (task succeeded, asset missing) is retried on the next poll.
func (r *Reconciler) storeArtifact(ctx context.Context, rec *letter.Record, task *meshy.Task, status *TaskStatus) (*TaskStatus, error) {
	if task.ModelURL == "" {
		log.Warn().Str("taskId", task.ID).Str("recordId", rec.ID).Msg("Task succeeded without a model URL; nothing to download")
		return status, nil
	}

	data, err := r.store.Fetch(ctx, task.ModelURL)
	if err != nil {
		return nil, fmt.Errorf("download artifact for %s: %w", rec.ID, err)
	}

	now := r.now()
	key := mediafile.Key(mediafile.CategoryAsset3D, rec.ID, rec.ID+".glb", now)
	url, err := r.store.PutMedia(ctx, key, data, mediafile.ContentType(mediafile.CategoryAsset3D, key))
	if err != nil {
		return nil, fmt.Errorf("store artifact for %s: %w", rec.ID, err)
	}

	updated := *rec
	updated.AssetURL = url
	updated.UpdatedAt = now
	if err := r.store.PutRecord(ctx, &updated); err != nil {
		return nil, fmt.Errorf("persist record %s: %w", rec.ID, err)
	}

	log.Info().Str("recordId", rec.ID).Str("assetUrl", url).Int("bytes", len(data)).Msg("Artifact stored")
	status.ArtifactURL = url
	return status, nil
}
