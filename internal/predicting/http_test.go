package predicting

import (
	"context"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Remote", func() {
	var (
		server    *ghttp.Server
		predictor *Remote
		scale     Scale
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scale = Fraction
	})

	JustBeforeEach(func() {
		var err error
		predictor, err = NewRemote(server.URL(), BinaryVocabulary(), scale)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewRemote", func() {
		It("rejects non-http URLs", func() {
			_, err := NewRemote("ftp://example.com", nil, Fraction)
			Expect(err).To(HaveOccurred())
		})

		It("defaults to the local development address", func() {
			r, err := NewRemote("", nil, Fraction)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.baseURL).To(Equal(DefaultBaseURL))
		})
	})

	Describe("Predict", func() {
		When("the service classifies the image", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/predict"),
					func(w http.ResponseWriter, r *http.Request) {
						defer GinkgoRecover()
						f, header, err := r.FormFile("file")
						Expect(err).NotTo(HaveOccurred())
						defer f.Close()
						data, err := io.ReadAll(f)
						Expect(err).NotTo(HaveOccurred())
						Expect(string(data)).To(Equal("jpeg bytes"))
						Expect(header.Filename).To(Equal("photo.jpg"))
						Expect(header.Header.Get("Content-Type")).To(Equal("image/jpeg"))
					},
					ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
						"prediction": "bio-degradable",
						"confidence": 0.94,
					}),
				))
			})

			It("returns the validated prediction", func() {
				p, err := predictor.Predict(context.Background(), "photo.jpg", []byte("jpeg bytes"), "image/jpeg")
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Category.Name).To(Equal(Biodegradable))
				Expect(p.Confidence).To(BeNumerically("~", 0.94, 1e-9))
				Expect(server.ReceivedRequests()).To(HaveLen(1))
			})
		})

		When("the service reports percentages", func() {
			BeforeEach(func() {
				scale = Percent
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
					"category":   "non-biodegradable",
					"confidence": 91,
				}))
			})

			It("normalizes to a fraction", func() {
				p, err := predictor.Predict(context.Background(), "photo.png", []byte("png"), "image/png")
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Confidence).To(BeNumerically("~", 0.91, 1e-9))
			})
		})

		When("the service fails", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
			})

			It("returns a server error with the status", func() {
				_, err := predictor.Predict(context.Background(), "photo.jpg", []byte("x"), "image/jpeg")
				Expect(err).To(MatchError(ErrServerError))
				Expect(err.Error()).To(ContainSubstring("500"))
				Expect(err.Error()).To(ContainSubstring("model not loaded"))
			})
		})

		When("the service rejects the upload", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusBadRequest, `{"detail":"Invalid file type"}`))
			})

			It("returns a server error", func() {
				_, err := predictor.Predict(context.Background(), "photo.gif", []byte("x"), "image/gif")
				Expect(err).To(MatchError(ErrServerError))
			})
		})

		When("the response is missing fields", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]string{"status": "ok"}))
			})

			It("returns a malformed response error", func() {
				_, err := predictor.Predict(context.Background(), "photo.jpg", []byte("x"), "image/jpeg")
				Expect(err).To(MatchError(ErrMalformedResponse))
			})
		})

		When("the service cannot be reached", func() {
			It("returns a network error", func() {
				url := server.URL()
				server.Close()
				r, err := NewRemote(url, nil, Fraction)
				Expect(err).NotTo(HaveOccurred())

				_, err = r.Predict(context.Background(), "photo.jpg", []byte("x"), "image/jpeg")
				Expect(err).To(MatchError(ErrNetworkUnreachable))
			})
		})

		When("the deadline passes", func() {
			BeforeEach(func() {
				server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
					time.Sleep(300 * time.Millisecond)
				})
			})

			It("reports the endpoint as unreachable", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
				defer cancel()
				_, err := predictor.Predict(ctx, "photo.jpg", []byte("x"), "image/jpeg")
				Expect(err).To(MatchError(ErrNetworkUnreachable))
			})
		})

		When("the caller cancels", func() {
			It("returns the cancellation unchanged", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				_, err := predictor.Predict(ctx, "photo.jpg", []byte("x"), "image/jpeg")
				Expect(err).To(MatchError(context.Canceled))
				Expect(err).NotTo(MatchError(ErrNetworkUnreachable))
			})
		})
	})

	Describe("Ping", func() {
		It("succeeds for any HTTP answer", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/"),
				ghttp.RespondWith(http.StatusNotFound, ""),
			))
			Expect(predictor.Ping(context.Background())).To(Succeed())
		})

		It("fails when the service is down", func() {
			url := server.URL()
			server.Close()
			r, _ := NewRemote(url, nil, Fraction)
			Expect(r.Ping(context.Background())).To(MatchError(ErrNetworkUnreachable))
		})
	})
})
