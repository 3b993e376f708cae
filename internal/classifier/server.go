package classifier

import (
	"net/http"
	"sync"

	"github.com/zombor/waste-classifier/internal/workflow"
)

// Server handles HTTP requests for the classification workflow
type Server struct {
	controller *workflow.Controller
	version    string
	mux        *http.ServeMux

	// watchers counts open event streams; the last one leaving releases the camera
	watchersMu sync.Mutex
	watchers   int
}

// NewServer creates a new Server with default mux
func NewServer(controller *workflow.Controller, version string) *Server {
	return NewServerWithMux(controller, version, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(controller *workflow.Controller, version string, mux *http.ServeMux) *Server {
	s := &Server{
		controller: controller,
		version:    version,
		mux:        mux,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.handleStaticCSS)
	s.mux.HandleFunc("GET /static/app.js", s.handleStaticJS)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/image", s.handleUploadImage)
	s.mux.HandleFunc("POST /api/classify", s.handleClassify)
	s.mux.HandleFunc("POST /api/reset", s.handleReset)

	s.mux.HandleFunc("GET /api/camera/frame", s.handleCameraFrame)
	s.mux.HandleFunc("POST /api/camera/capture", s.handleCameraCapture)
	s.mux.HandleFunc("POST /api/camera", s.handleStartCamera)
	s.mux.HandleFunc("DELETE /api/camera", s.handleStopCamera)

	// Catch-all, registered last
	s.mux.HandleFunc("GET /index.html", s.handleIndex)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
