package classifier

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/waste-classifier/internal/predicting"
	"github.com/zombor/waste-classifier/internal/workflow"
)

var _ = Describe("Present", func() {
	asset := &workflow.Asset{
		ID:          "asset-1",
		Name:        "photo.jpg",
		ContentType: "image/jpeg",
		Origin:      workflow.OriginUpload,
		Size:        3,
		DataURI:     "data:image/jpeg;base64,AAAA",
	}

	resultWith := func(confidence float64, bio bool) *workflow.Result {
		name := predicting.NonBiodegradable
		if bio {
			name = predicting.Biodegradable
		}
		return &workflow.Result{
			AssetID:    asset.ID,
			Category:   predicting.Category{Name: name, Biodegradable: bio},
			Confidence: confidence,
			RawLabel:   "bio-degradable",
		}
	}

	It("shows nothing but the picker when idle", func() {
		view := Present(workflow.Snapshot{State: workflow.Idle})
		Expect(view.State).To(Equal("Idle"))
		Expect(view.Image).To(BeNil())
		Expect(view.Result).To(BeNil())
		Expect(view.Error).To(BeNil())
		Expect(view.CanClassify).To(BeFalse())
		Expect(view.Analyzing).To(BeFalse())
	})

	It("offers the predict button once an image is ready", func() {
		view := Present(workflow.Snapshot{State: workflow.ImageReady, Asset: asset})
		Expect(view.CanClassify).To(BeTrue())
		Expect(view.Image.Name).To(Equal("photo.jpg"))
		Expect(view.Image.Origin).To(Equal("upload"))
		Expect(view.Image.DataURI).To(Equal(asset.DataURI))
	})

	It("shows an analyzing indicator while requesting", func() {
		view := Present(workflow.Snapshot{State: workflow.Requesting, Asset: asset})
		Expect(view.Analyzing).To(BeTrue())
		Expect(view.CanClassify).To(BeFalse())
	})

	It("renders a biodegradable result", func() {
		view := Present(workflow.Snapshot{State: workflow.ResultReady, Asset: asset, Result: resultWith(0.94, true)})
		Expect(view.Result.Category).To(Equal("Biodegradable"))
		Expect(view.Result.Description).To(Equal("This waste can decompose naturally"))
		Expect(view.Result.Percent).To(Equal(94.0))
		Expect(view.Result.ConfidenceText).To(Equal("94.0%"))
		Expect(view.CanClassify).To(BeFalse())
	})

	It("renders a non-biodegradable result", func() {
		view := Present(workflow.Snapshot{State: workflow.ResultReady, Asset: asset, Result: resultWith(0.5, false)})
		Expect(view.Result.Category).To(Equal("Non-Biodegradable"))
		Expect(view.Result.Description).To(Equal("This waste requires special disposal"))
		Expect(view.Result.Biodegradable).To(BeFalse())
	})

	It("hides a result outside of ResultReady", func() {
		view := Present(workflow.Snapshot{State: workflow.ImageReady, Asset: asset, Result: resultWith(0.5, true)})
		Expect(view.Result).To(BeNil())
	})

	It("shows the failure message and lets the user retry", func() {
		view := Present(workflow.Snapshot{
			State: workflow.Failed,
			Asset: asset,
			Err:   &workflow.Error{Kind: workflow.KindServerError},
		})
		Expect(view.Error.Kind).To(Equal("ServerError"))
		Expect(view.Error.Message).To(Equal((&workflow.Error{Kind: workflow.KindServerError}).Message()))
		Expect(view.CanClassify).To(BeTrue())
	})

	It("reports whether the camera is open", func() {
		Expect(Present(workflow.Snapshot{CameraActive: true}).CameraActive).To(BeTrue())
	})

	It("is deterministic", func() {
		snap := workflow.Snapshot{Version: 7, State: workflow.ResultReady, Asset: asset, Result: resultWith(0.8, true)}
		Expect(Present(snap)).To(Equal(Present(snap)))
	})
})

var _ = DescribeTable("confidence formatting",
	func(confidence float64, percent float64, text string) {
		Expect(confidencePercent(confidence)).To(Equal(percent))
		Expect(formatPercent(confidencePercent(confidence))).To(Equal(text))
	},
	Entry("typical", 0.94, 94.0, "94.0%"),
	Entry("rounds to one decimal", 0.98765, 98.8, "98.8%"),
	Entry("zero", 0.0, 0.0, "0.0%"),
	Entry("certain", 1.0, 100.0, "100.0%"),
	Entry("clamps above", 1.2, 100.0, "100.0%"),
	Entry("clamps below", -0.1, 0.0, "0.0%"),
)
