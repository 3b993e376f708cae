package predicting

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func tinyPNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2)))).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Ollama", func() {
	var (
		server    *ghttp.Server
		predictor *Ollama
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		predictor, err = NewOllama(server.URL(), "llava", WasteTypeVocabulary())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("sends the prompt with the image and parses the reply", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/api/chat"),
			ghttp.VerifyContentType("application/json"),
			func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				body, err := io.ReadAll(r.Body)
				Expect(err).NotTo(HaveOccurred())
				var req ollamaChatRequest
				Expect(json.Unmarshal(body, &req)).To(Succeed())
				Expect(req.Model).To(Equal("llava"))
				Expect(req.Messages).To(HaveLen(2))
				Expect(req.Messages[1].Images).To(HaveLen(1))
				Expect(req.Messages[1].Content).To(ContainSubstring(`"Plastic"`))
			},
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
				"message": map[string]string{"role": "assistant", "content": `{"label": "Paper", "confidence": 0.72}`},
				"done":    true,
			}),
		))

		p, err := predictor.Predict(context.Background(), "box.png", tinyPNG(), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Category).To(Equal(Category{Name: "Paper", Biodegradable: true}))
		Expect(p.Confidence).To(BeNumerically("~", 0.72, 1e-9))
	})

	It("treats a non-200 answer as a server error", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":"model not found"}`))
		_, err := predictor.Predict(context.Background(), "box.png", tinyPNG(), "image/png")
		Expect(err).To(MatchError(ErrServerError))
	})

	It("treats an unknown label as malformed", func() {
		server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": `{"label": "Glass", "confidence": 0.5}`},
		}))
		_, err := predictor.Predict(context.Background(), "box.png", tinyPNG(), "image/png")
		Expect(err).To(MatchError(ErrMalformedResponse))
	})
})
