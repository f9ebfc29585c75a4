// Package main provides the Lambda entry point for the reminiscence letters API.
//
// It accepts memory submissions (letter text plus photo and optional audio),
// stores every blob in S3, and drives the asynchronous 3D ornament pipeline:
// subject extraction via Gemini, mesh generation and retexturing via Meshy,
// and artifact persistence back into the bucket.
//
// Endpoints:
//
//	GET  /api/health                     — health check (no auth required)
//	POST /api/submissions                — create or update a submission (multipart)
//	GET  /api/submissions                — list all submissions, featured first
//	GET  /api/submissions/{id}           — fetch one submission
//	GET  /api/generation-tasks/{taskId}  — poll a generation/refinement task
package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/waywereminisce/ornament-api/internal/blobstore"
	"github.com/waywereminisce/ornament-api/internal/lambdaboot"
	"github.com/waywereminisce/ornament-api/internal/logging"
	"github.com/waywereminisce/ornament-api/internal/meshy"
	"github.com/waywereminisce/ornament-api/internal/reconcile"
	"github.com/waywereminisce/ornament-api/internal/subject"
)

// Cold-start state.
var (
	app                *server
	originVerifySecret string
)

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	s3Clients := lambdaboot.InitS3(awsClients.Config, "BLOB_BUCKET_NAME")
	store := blobstore.NewS3Store(s3Clients.Client, s3Clients.Bucket, s3Clients.Region)

	meshyKey := lambdaboot.LoadMeshyKey(awsClients.SSM)
	meshyBase := logging.EnvOrDefault("MESHY_BASE_URL", meshy.DefaultBaseURL)
	tasks := meshy.NewClient(meshyKey, meshyBase)

	geminiKey := lambdaboot.LoadGeminiKey(awsClients.SSM)
	model := logging.EnvOrDefault("GEMINI_MODEL", subject.DefaultModelName)
	describer, err := subject.NewClient(context.Background(), geminiKey, model)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	// Refinement is on unless explicitly disabled.
	twoStage := os.Getenv("DISABLE_REFINEMENT") == ""
	featured := parseFeaturedIDs(os.Getenv("FEATURED_ORNAMENT_IDS"))

	originVerifySecret = os.Getenv("ORIGIN_VERIFY_SECRET")
	if originVerifySecret == "" {
		log.Warn().Msg("ORIGIN_VERIFY_SECRET not set — origin verification disabled")
	}

	app = &server{
		store:      store,
		reconciler: reconcile.New(store, tasks, describer, twoStage),
		featured:   featured,
	}

	lambdaboot.StartupLog("letters-lambda", initStart).
		S3Bucket("letters", s3Clients.Bucket).
		Endpoint("meshy", meshyBase).
		SSMParam("meshyKey", logging.EnvOrDefault("SSM_MESHY_KEY_PARAM", "/ornament-api/prod/meshy-api-key")).
		SSMParam("geminiKey", logging.EnvOrDefault("SSM_GEMINI_KEY_PARAM", "/ornament-api/prod/gemini-api-key")).
		Feature("twoStage", twoStage).
		Feature("originVerify", originVerifySecret != "").
		Config("geminiModel", model).
		Config("featuredCount", strconv.Itoa(len(featured))).
		Log()
}

// parseFeaturedIDs splits the comma-separated featured ornament allowlist,
// preserving order and dropping empty entries.
func parseFeaturedIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// withOriginVerify is middleware that rejects requests lacking the correct
// x-origin-verify header. CloudFront injects this header via a custom origin
// header, so direct API Gateway access is blocked.
func withOriginVerify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if originVerifySecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("x-origin-verify") != originVerifySecret {
			log.Warn().Str("path", r.URL.Path).Msg("Blocked request: missing or invalid x-origin-verify header")
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	adapter := httpadapter.NewV2(withOriginVerify(app.routes()))
	lambda.Start(adapter.ProxyWithContext)
}
