package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zombor/waste-classifier/internal/imaging"
	"github.com/zombor/waste-classifier/internal/workflow"
)

// maxUploadSize allows high-resolution phone photos
const maxUploadSize = int64(50 << 20)

const tooLargeMessage = "File is too large. Maximum size is 50MB. Please compress or resize your image."

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	View  *View  `json:"view,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// statusFor maps workflow errors onto HTTP status codes
func statusFor(err error) int {
	var wfErr *workflow.Error
	switch {
	case errors.As(err, &wfErr):
		switch wfErr.Kind {
		case workflow.KindUnsupportedMediaType:
			return http.StatusUnsupportedMediaType
		case workflow.KindPermissionDenied:
			return http.StatusForbidden
		case workflow.KindDeviceUnavailable:
			return http.StatusServiceUnavailable
		default:
			return http.StatusBadGateway
		}
	case errors.Is(err, workflow.ErrNoImage),
		errors.Is(err, workflow.ErrRequestInFlight),
		errors.Is(err, workflow.ErrAlreadyClassified),
		errors.Is(err, workflow.ErrCameraInactive),
		errors.Is(err, workflow.ErrCameraCancelled):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err along with the state it left behind
func (s *Server) writeError(w http.ResponseWriter, err error) {
	view := Present(s.controller.Snapshot())
	resp := errorResponse{Error: err.Error(), View: &view}

	var wfErr *workflow.Error
	if errors.As(err, &wfErr) {
		resp.Error = wfErr.Message()
		resp.Kind = wfErr.Kind.String()
	}
	writeJSON(w, statusFor(err), resp)
}

// handleIndex serves the HTML interface rendered for the current state
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderIndex(w, Present(s.controller.Snapshot()), s.version); err != nil {
		slog.Error("Error rendering page", "error", err)
	}
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Waste classifier is online",
		"version": s.version,
	})
}

// handleState returns the current view
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Present(s.controller.Snapshot()))
}

// handleUploadImage replaces the held image with an uploaded one
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = tooLargeMessage
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorMsg})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose an image to upload."
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorMsg})
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: tooLargeMessage})
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Error reading file. Please try again."})
		return
	}

	// Multipart writers often send octet-stream for everything
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || imaging.NormalizeMediaType(contentType) == "application/octet-stream" {
		contentType = imaging.FromExtension(header.Filename)
	}

	acquire := s.controller.AcquireFromFile
	if workflow.Origin(r.FormValue("origin")) == workflow.OriginCamera {
		acquire = s.controller.AcquireCapture
	}

	snap, err := acquire(header.Filename, data, contentType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Present(snap))
}

// handleClassify starts a classification. With ?wait=true it answers once the outcome is known.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	done, err := s.controller.Classify()
	if err != nil {
		s.writeError(w, err)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusAccepted, Present(s.controller.Snapshot()))
		return
	}

	select {
	case <-done:
		writeJSON(w, http.StatusOK, Present(s.controller.Snapshot()))
	case <-r.Context().Done():
		slog.Debug("Client stopped waiting for classification", "error", r.Context().Err())
	}
}

// handleReset clears everything
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Present(s.controller.Reset()))
}

// handleStartCamera opens the camera
func (s *Server) handleStartCamera(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.StartCamera(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Present(s.controller.Snapshot()))
}

// handleCameraFrame serves the current preview frame
func (s *Server) handleCameraFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := s.controller.PreviewFrame(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", frame.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame.Data)
}

// handleCameraCapture turns the current frame into the held image
func (s *Server) handleCameraCapture(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.CaptureFrame(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Present(snap))
}

// handleStopCamera releases the camera
func (s *Server) handleStopCamera(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Present(s.controller.CancelCamera()))
}
