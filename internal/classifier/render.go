package classifier

import (
	"fmt"
	"math"

	"github.com/zombor/waste-classifier/internal/workflow"
)

const (
	biodegradableDescription    = "This waste can decompose naturally"
	nonBiodegradableDescription = "This waste requires special disposal"
)

// View is everything the UI needs to draw one snapshot
type View struct {
	Version      uint64      `json:"version"`
	State        string      `json:"state"`
	Image        *ImageView  `json:"image,omitempty"`
	CanClassify  bool        `json:"can_classify"`
	Analyzing    bool        `json:"analyzing"`
	CameraActive bool        `json:"camera_active"`
	Result       *ResultView `json:"result,omitempty"`
	Error        *ErrorView  `json:"error,omitempty"`
}

// ImageView describes the held image
type ImageView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Origin      string `json:"origin"`
	Size        int    `json:"size"`
	DataURI     string `json:"data_uri"`
}

// ResultView is a classification ready for display
type ResultView struct {
	Category       string  `json:"category"`
	Biodegradable  bool    `json:"biodegradable"`
	Description    string  `json:"description"`
	Label          string  `json:"label"`
	Confidence     float64 `json:"confidence"`
	Percent        float64 `json:"percent"`
	ConfidenceText string  `json:"confidence_text"`
}

// ErrorView is the inline or failure message
type ErrorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Present turns a snapshot into a view. It has no side effects.
func Present(snap workflow.Snapshot) View {
	view := View{
		Version:      snap.Version,
		State:        snap.State.String(),
		CanClassify:  snap.State == workflow.ImageReady || snap.State == workflow.Failed,
		Analyzing:    snap.State == workflow.Requesting,
		CameraActive: snap.CameraActive,
	}

	if a := snap.Asset; a != nil {
		view.Image = &ImageView{
			ID:          a.ID,
			Name:        a.Name,
			ContentType: a.ContentType,
			Origin:      string(a.Origin),
			Size:        a.Size,
			DataURI:     a.DataURI,
		}
	}

	if r := snap.Result; r != nil && snap.State == workflow.ResultReady {
		percent := confidencePercent(r.Confidence)
		description := nonBiodegradableDescription
		if r.Category.Biodegradable {
			description = biodegradableDescription
		}
		view.Result = &ResultView{
			Category:       r.Category.Name,
			Biodegradable:  r.Category.Biodegradable,
			Description:    description,
			Label:          r.RawLabel,
			Confidence:     r.Confidence,
			Percent:        percent,
			ConfidenceText: formatPercent(percent),
		}
	}

	if e := snap.Err; e != nil {
		view.Error = &ErrorView{
			Kind:    e.Kind.String(),
			Message: e.Message(),
		}
	}

	return view
}

// confidencePercent converts a fraction to a percent rounded to one decimal, clamped to [0,100]
func confidencePercent(confidence float64) float64 {
	if math.IsNaN(confidence) {
		return 0
	}
	percent := math.Round(confidence*1000) / 10
	return math.Max(0, math.Min(100, percent))
}

func formatPercent(percent float64) string {
	return fmt.Sprintf("%.1f%%", percent)
}
