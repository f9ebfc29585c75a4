// Package main provides the ornament-cli maintenance tool.
//
// It drives the same pipeline as the letters Lambda against the production
// bucket: submitting test letters, polling generation tasks, pruning orphaned
// blobs, and backfilling asset URLs for records whose artifact download was
// interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/waywereminisce/ornament-api/internal/blobstore"
	"github.com/waywereminisce/ornament-api/internal/lambdaboot"
	"github.com/waywereminisce/ornament-api/internal/letter"
	"github.com/waywereminisce/ornament-api/internal/logging"
	"github.com/waywereminisce/ornament-api/internal/meshy"
	"github.com/waywereminisce/ornament-api/internal/reconcile"
	"github.com/waywereminisce/ornament-api/internal/subject"
)

// Polling cadence for the poll command. Generation typically finishes within
// a few minutes; the wall-clock budget guards against abandoned tasks.
const (
	pollInterval = 4 * time.Second
	pollBudget   = 10 * time.Minute
)

// CLI flags
var (
	idFlag              string
	titleFlag           string
	storyFlag           string
	moodFlag            string
	narrationScriptFlag string
	photoFlag           string
	photoURLFlag        string

	taskFlag   string
	recordFlag string

	keepFlag   []string
	dryRunFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "ornament-cli",
	Short: "Maintenance tool for the reminiscence letters backend",
	Long: `ornament-cli operates directly on the letters bucket and the Meshy API.

It shares the Lambda's storage and pipeline code, so a letter submitted here
is indistinguishable from one submitted through the web frontend.

Configuration comes from the environment: BLOB_BUCKET_NAME selects the
bucket, MESHY_API_KEY / GEMINI_API_KEY hold credentials (with SSM Parameter
Store fallback), and AWS credentials resolve through the default chain.

Examples:
  ornament-cli list
  ornament-cli new --title "First snow" --story "..." --photo ./snow.jpg
  ornament-cli poll --task 01890cc1-... --record letter-7
  ornament-cli cleanup --keep letter-7 --keep letter-9 --dry-run
  ornament-cli fix-assets`,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all submission records",
	Run:   runList,
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Submit a letter, starting asset generation when it qualifies",
	Run:   runNew,
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll a generation task until it reaches a terminal state",
	Run:   runPoll,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete records and media not on the keep list",
	Run:   runCleanup,
}

var fixAssetsCmd = &cobra.Command{
	Use:   "fix-assets",
	Short: "Backfill asset URLs for records whose artifact download was lost",
	Run:   runFixAssets,
}

func init() {
	newCmd.Flags().StringVar(&idFlag, "id", "", "Record id (default: a new UUID)")
	newCmd.Flags().StringVar(&titleFlag, "title", "", "Letter title")
	newCmd.Flags().StringVar(&storyFlag, "story", "", "Letter story text")
	newCmd.Flags().StringVar(&moodFlag, "mood", "", "Mood label")
	newCmd.Flags().StringVar(&narrationScriptFlag, "narration-script", "", "Narration script text")
	newCmd.Flags().StringVar(&photoFlag, "photo", "", "Path to a photo to upload")
	newCmd.Flags().StringVar(&photoURLFlag, "photo-url", "", "External photo URL (instead of --photo)")

	pollCmd.Flags().StringVar(&taskFlag, "task", "", "Task id to poll (required)")
	pollCmd.Flags().StringVar(&recordFlag, "record", "", "Record id to advance with the task result")
	pollCmd.MarkFlagRequired("task")

	cleanupCmd.Flags().StringArrayVar(&keepFlag, "keep", nil, "Record id to keep (repeatable)")
	cleanupCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Print what would be deleted without deleting")

	rootCmd.AddCommand(listCmd, newCmd, pollCmd, cleanupCmd, fixAssetsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// --- Shared wiring ---

// env is the CLI's resolved backend: the S3 store plus the task client.
type env struct {
	store *blobstore.S3Store
	tasks *meshy.Client
	aws   lambdaboot.AWSClients
}

func initEnv() *env {
	logging.Init()
	awsClients := lambdaboot.InitAWS()
	s3Clients := lambdaboot.InitS3(awsClients.Config, "BLOB_BUCKET_NAME")

	meshyKey := lambdaboot.LoadMeshyKey(awsClients.SSM)
	meshyBase := logging.EnvOrDefault("MESHY_BASE_URL", meshy.DefaultBaseURL)

	return &env{
		store: blobstore.NewS3Store(s3Clients.Client, s3Clients.Bucket, s3Clients.Region),
		tasks: meshy.NewClient(meshyKey, meshyBase),
		aws:   awsClients,
	}
}

// newReconciler wires the full pipeline, including the Gemini describer.
// Only commands that can start generation pay the Gemini key lookup.
func (e *env) newReconciler(ctx context.Context, withDescriber bool) *reconcile.Reconciler {
	var describer reconcile.Describer
	if withDescriber {
		geminiKey := lambdaboot.LoadGeminiKey(e.aws.SSM)
		model := logging.EnvOrDefault("GEMINI_MODEL", subject.DefaultModelName)
		client, err := subject.NewClient(ctx, geminiKey, model)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		describer = client
	}
	twoStage := os.Getenv("DISABLE_REFINEMENT") == ""
	return reconcile.New(e.store, e.tasks, describer, twoStage)
}

// --- list ---

func runList(cmd *cobra.Command, args []string) {
	e := initEnv()
	records, err := e.store.ListRecords(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list records")
	}

	fmt.Printf("%-24s %-28s %-12s %s\n", "ID", "TITLE", "PIPELINE", "UPDATED")
	for _, rec := range records {
		fmt.Printf("%-24s %-28s %-12s %s\n",
			truncate(rec.ID, 24), truncate(rec.Title, 28),
			pipelineState(rec), rec.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Printf("\n%d record(s)\n", len(records))
}

// pipelineState summarises where a record sits in the asset pipeline.
func pipelineState(rec *letter.Record) string {
	switch {
	case rec.AssetURL != "":
		return "done"
	case rec.RefinementTaskID != "":
		return "refining"
	case rec.GenerationTaskID != "":
		return "generating"
	case rec.ImageURL != "" && rec.Story != "":
		return "queued"
	default:
		return "incomplete"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// --- new ---

func runNew(cmd *cobra.Command, args []string) {
	e := initEnv()
	ctx := context.Background()

	id := idFlag
	if id == "" {
		id = uuid.NewString()
	}

	upd := letter.Update{}
	setIfGiven := func(dst **string, flagName, value string) {
		if cmd.Flags().Changed(flagName) {
			v := value
			*dst = &v
		}
	}
	setIfGiven(&upd.Title, "title", titleFlag)
	setIfGiven(&upd.Story, "story", storyFlag)
	setIfGiven(&upd.Mood, "mood", moodFlag)
	setIfGiven(&upd.NarrationScript, "narration-script", narrationScriptFlag)

	switch {
	case photoFlag != "":
		data, err := os.ReadFile(photoFlag)
		if err != nil {
			log.Fatal().Err(err).Str("path", photoFlag).Msg("Failed to read photo")
		}
		upd.Photo = letter.UploadedMedia(data, photoFlag, "")
	case photoURLFlag != "":
		upd.Photo = letter.ExternalMedia(photoURLFlag)
	}

	rec, err := e.newReconciler(ctx, true).Reconcile(ctx, id, upd)
	if err != nil {
		log.Fatal().Err(err).Str("recordId", id).Msg("Submission failed")
	}

	fmt.Printf("Record:     %s\n", rec.ID)
	if rec.GenerationTaskID != "" {
		fmt.Printf("Task:       %s\n", rec.GenerationTaskID)
		fmt.Printf("Prompt:     %s\n", rec.GenerationPrompt)
		fmt.Printf("\nPoll with:  ornament-cli poll --task %s --record %s\n", rec.GenerationTaskID, rec.ID)
	} else {
		fmt.Println("No generation task started (needs both a photo and a story, and no existing asset).")
	}
}

// --- poll ---

func runPoll(cmd *cobra.Command, args []string) {
	e := initEnv()
	ctx := context.Background()
	rc := e.newReconciler(ctx, false)

	deadline := time.Now().Add(pollBudget)
	taskID := taskFlag

	for {
		status, err := rc.CheckTask(ctx, taskID, recordFlag)
		if err != nil {
			log.Fatal().Err(err).Str("taskId", taskID).Msg("Poll failed")
		}

		fmt.Printf("%s  %s %3d%%\n", time.Now().Format("15:04:05"), status.Status, status.Progress)

		switch {
		case status.ArtifactURL != "":
			fmt.Printf("\nArtifact: %s\n", status.ArtifactURL)
			return
		case status.Status == meshy.StatusFailed:
			log.Fatal().Str("taskId", taskID).Str("error", status.Error).Msg("Task failed")
		case status.RefinementTaskID != "" && status.RefinementTaskID != taskID:
			// The pipeline chained a refinement task; follow it.
			taskID = status.RefinementTaskID
			fmt.Printf("Following refinement task %s\n", taskID)
		}

		if time.Now().After(deadline) {
			log.Fatal().Str("taskId", taskID).Dur("budget", pollBudget).Msg("Polling budget exhausted")
		}
		time.Sleep(pollInterval)
	}
}

// --- cleanup ---

func runCleanup(cmd *cobra.Command, args []string) {
	if len(keepFlag) == 0 {
		log.Fatal().Msg("Refusing to run without --keep; pass at least one record id")
	}
	e := initEnv()
	ctx := context.Background()

	keep := make(map[string]bool, len(keepFlag))
	for _, id := range keepFlag {
		keep[id] = true
	}

	keys, err := e.store.ListKeys(ctx, "")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list blobs")
	}

	var doomed []string
	for _, key := range keys {
		if keepKey(key, keep) {
			continue
		}
		doomed = append(doomed, key)
	}

	if dryRunFlag {
		for _, key := range doomed {
			fmt.Printf("would delete: %s\n", key)
		}
		fmt.Printf("\n%d of %d blob(s) would be deleted\n", len(doomed), len(keys))
		return
	}

	if err := e.store.Delete(ctx, doomed...); err != nil {
		log.Fatal().Err(err).Msg("Cleanup failed")
	}
	fmt.Printf("Deleted %d of %d blob(s)\n", len(doomed), len(keys))
}

// keepKey reports whether a blob belongs to a kept record: its JSON record
// itself, or any media blob keyed {category}/{id}_...
func keepKey(key string, keep map[string]bool) bool {
	if rest, ok := strings.CutPrefix(key, blobstore.RecordPrefix); ok {
		return keep[strings.TrimSuffix(rest, ".json")]
	}
	_, base, ok := strings.Cut(key, "/")
	if !ok {
		return true // unrecognized layout, leave it alone
	}
	for id := range keep {
		if strings.HasPrefix(base, id+"_") {
			return true
		}
	}
	return false
}

// --- fix-assets ---

func runFixAssets(cmd *cobra.Command, args []string) {
	e := initEnv()
	ctx := context.Background()
	rc := e.newReconciler(ctx, false)

	records, err := e.store.ListRecords(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list records")
	}

	var fixed, skipped int
	for _, rec := range records {
		if rec.AssetURL != "" {
			skipped++
			continue
		}
		taskID := rec.RefinementTaskID
		if taskID == "" {
			taskID = rec.GenerationTaskID
		}
		if taskID == "" {
			skipped++
			continue
		}

		status, err := rc.CheckTask(ctx, taskID, rec.ID)
		if err != nil {
			log.Warn().Err(err).Str("recordId", rec.ID).Msg("Could not check task")
			continue
		}
		if status.ArtifactURL != "" {
			fmt.Printf("%-24s backfilled %s\n", rec.ID, status.ArtifactURL)
			fixed++
		} else {
			fmt.Printf("%-24s %s %d%%\n", rec.ID, status.Status, status.Progress)
		}
	}
	fmt.Printf("\n%d backfilled, %d skipped, %d total\n", fixed, skipped, len(records))
}
