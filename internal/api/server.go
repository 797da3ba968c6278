// Package api is the HTTP surface shared by the local server and the API
// Gateway Lambda.
//
// Endpoints:
//
//	GET    /api/health
//	POST   /api/projects                          create a project
//	GET    /api/projects/{id}                     project + status summary
//	GET    /api/projects/{id}/images              images of a project
//	GET    /api/upload-url                        presigned PUT URL for a photo
//	POST   /api/images                            complete an upload
//	GET    /api/images/{id}                       image + blob links
//	DELETE /api/images/{id}                       delete image, versions, blobs
//	POST   /api/images/{id}/room-type             override the room type
//	POST   /api/images/{id}/stage                 generate a staged version
//	POST   /api/images/{id}/approve               approve the current version
//	POST   /api/images/{id}/prune                 drop old unpinned versions
//	GET    /api/images/{id}/versions              version history
//	POST   /api/images/{id}/versions/{vid}/current
//	POST   /api/images/{id}/versions/{vid}/pin
//	DELETE /api/images/{id}/versions/{vid}
//	POST   /api/roomtype/detect                   classify a filename + metadata
//	GET    /api/catalog                           style presets and room types
//	POST   /api/exports                           start an MLS export
//	GET    /api/exports/{id}                      export status + download link
//	GET    /api/accounts/{userId}                 credit balance
//	POST   /api/billing/webhook                   signed payment events
//
// Image and export routes take the owning project in the projectId query
// parameter. When the caller sends X-User-Id it must match the project owner.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/smiley-maker/rooms-that-sell/internal/dispatch"
	"github.com/smiley-maker/rooms-that-sell/internal/jobs"
	"github.com/smiley-maker/rooms-that-sell/internal/lifecycle"
	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
	"github.com/smiley-maker/rooms-that-sell/internal/s3util"
	"github.com/smiley-maker/rooms-that-sell/internal/staging"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

const billingWebhookPath = "/api/billing/webhook"

// RoomAnalyzer describes a photo for the classifier. *staging.Analyzer
// implements it.
type RoomAnalyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType, extraContext string) (*staging.Analysis, error)
}

// Deps are the services behind the API. Optional fields may be nil.
type Deps struct {
	Lifecycle *lifecycle.Service
	Blobs     s3util.BlobStore
	Uploads   s3util.UploadSigner
	Exports   *jobs.ExportRunner

	// Stager runs generations in-request when StageJobs is nil.
	Stager    *staging.Stager
	StageJobs dispatch.Dispatcher
	// ExportJobs runs exports; required for POST /api/exports.
	ExportJobs dispatch.Dispatcher

	Analyzer RoomAnalyzer
	Accounts store.AccountStore
	Webhook  http.Handler

	OriginVerifySecret string
	AllowedOrigin      string
	URLExpiry          time.Duration
	Version            string
}

// Server routes API requests.
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

// New builds a Server and registers its routes.
func New(deps Deps) *Server {
	if deps.URLExpiry <= 0 {
		deps.URLExpiry = 15 * time.Minute
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/projects", s.handleCreateProject)
	s.mux.HandleFunc("/api/projects/", s.handleProjectRoutes)
	s.mux.HandleFunc("/api/upload-url", s.handleUploadURL)
	s.mux.HandleFunc("/api/images", s.handleCompleteUpload)
	s.mux.HandleFunc("/api/images/", s.handleImageRoutes)
	s.mux.HandleFunc("/api/roomtype/detect", s.handleDetectRoomType)
	s.mux.HandleFunc("/api/catalog", s.handleCatalog)
	s.mux.HandleFunc("/api/exports", s.handleCreateExport)
	s.mux.HandleFunc("/api/exports/", s.handleExportRoutes)
	s.mux.HandleFunc("/api/accounts/", s.handleAccount)
	s.mux.HandleFunc(billingWebhookPath, s.handleWebhook)
	return s
}

// Mount adds a non-API handler, such as local blob serving.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the mux wrapped in logging, CORS, metrics and origin
// verification.
func (s *Server) Handler() http.Handler {
	return withLogging(withCORS(s.deps.AllowedOrigin, withMetrics(withOriginVerify(s.deps.OriginVerifySecret, s.mux))))
}

func (s *Server) store() store.Store {
	return s.deps.Lifecycle.Store()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.deps.Version,
	})
}

type roomTypeEntry struct {
	ID   roomtype.RoomType `json:"id"`
	Name string            `json:"name"`
}

// GET /api/catalog
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rooms := make([]roomTypeEntry, 0, len(roomtype.All()))
	for _, rt := range roomtype.All() {
		rooms = append(rooms, roomTypeEntry{ID: rt, Name: rt.DisplayName()})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"styles":    staging.Styles(),
		"roomTypes": rooms,
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.Webhook == nil {
		httpError(w, http.StatusServiceUnavailable, "billing not configured")
		return
	}
	s.deps.Webhook.ServeHTTP(w, r)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Accounts == nil {
		httpError(w, http.StatusServiceUnavailable, "billing not configured")
		return
	}
	route, ok := jobs.ParseRoute(r.URL.Path, "/api/accounts/")
	if !ok || len(route.Rest) > 0 {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	if caller := r.Header.Get(userHeader); caller != "" && !jobs.CheckOwnership(caller, route.ID) {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	acct, err := s.deps.Accounts.GetAccount(r.Context(), route.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if acct == nil {
		acct = &store.Account{UserID: route.ID}
	}
	respondJSON(w, http.StatusOK, acct)
}
