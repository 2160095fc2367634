package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	clips := ClipHandler{
		Clips:          deps.Clips,
		Privilege:      deps.Privilege,
		MaxUploadBytes: deps.MaxUploadBytes,
	}
	files := FileHandler{Blobs: deps.Blobs}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("POST /clips", clips.Upload)
	mux.HandleFunc("GET /clips/recent", clips.ListRecent)
	mux.HandleFunc("GET /clips/by-hash/{hash}", clips.GetByHash)
	mux.HandleFunc("GET /clips/owner/{ownerId}", clips.ListByOwner)
	mux.HandleFunc("PATCH /clips/{id}/privacy", clips.SetPrivacy)
	mux.HandleFunc("DELETE /clips/{id}", clips.Delete)
	mux.HandleFunc("POST /clips/{idOrHash}/view", clips.RecordView)
	mux.HandleFunc("GET /files/{path...}", files.Serve)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Clips          ClipService
	Blobs          BlobOpener
	Privilege      PrivilegeResolver
	MaxUploadBytes int64
}
