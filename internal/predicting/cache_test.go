package predicting

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockCache is an in-memory Cache
type mockCache struct {
	values map[string]string
	getErr error
	setErr error
	sets   int
}

func newMockCache() *mockCache {
	return &mockCache{values: make(map[string]string)}
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	case string:
		m.values[key] = v
	}
	return nil
}

func (m *mockCache) Get(ctx context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

// countingPredictor returns a fixed prediction and counts calls
type countingPredictor struct {
	prediction *Prediction
	err        error
	calls      int
}

func (c *countingPredictor) Predict(ctx context.Context, filename string, imageData []byte, contentType string) (*Prediction, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.prediction, nil
}

func (c *countingPredictor) Close() error {
	return nil
}

// pingingPredictor adds a reachability check to countingPredictor
type pingingPredictor struct {
	*countingPredictor
	err error
}

func (p *pingingPredictor) Ping(ctx context.Context) error {
	return p.err
}

var _ = Describe("Cached", func() {
	var (
		cache  *mockCache
		next   *countingPredictor
		cached *Cached
	)

	BeforeEach(func() {
		cache = newMockCache()
		next = &countingPredictor{prediction: &Prediction{
			Category:   Category{Name: Biodegradable, Biodegradable: true},
			Confidence: 0.9,
			RawLabel:   "bio-degradable",
		}}
		cached = NewCached(next, cache, time.Hour, "http", BinaryVocabulary())
	})

	It("calls the predictor once for repeated images", func() {
		first, err := cached.Predict(context.Background(), "a.jpg", []byte("same"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		second, err := cached.Predict(context.Background(), "b.jpg", []byte("same"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())

		Expect(next.calls).To(Equal(1))
		Expect(second).To(Equal(first))
	})

	It("keys by content", func() {
		_, _ = cached.Predict(context.Background(), "a.jpg", []byte("one"), "image/jpeg")
		_, _ = cached.Predict(context.Background(), "a.jpg", []byte("two"), "image/jpeg")
		Expect(next.calls).To(Equal(2))
	})

	It("does not cache failures", func() {
		next.err = ErrServerError
		_, err := cached.Predict(context.Background(), "a.jpg", []byte("x"), "image/jpeg")
		Expect(err).To(MatchError(ErrServerError))
		Expect(cache.sets).To(BeZero())
	})

	It("falls through when the cache is down", func() {
		cache.getErr = errors.New("connection refused")
		cache.setErr = errors.New("connection refused")
		p, err := cached.Predict(context.Background(), "a.jpg", []byte("x"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Category.Name).To(Equal(Biodegradable))
		Expect(next.calls).To(Equal(1))
	})

	It("ignores unreadable cache entries", func() {
		cache.values[cached.predictionKey([]byte("x"))] = "not json"
		_, err := cached.Predict(context.Background(), "a.jpg", []byte("x"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		Expect(next.calls).To(Equal(1))
	})

	It("does not serve a prediction cached under another vocabulary", func() {
		wasteType := &countingPredictor{prediction: &Prediction{
			Category:   Category{Name: "Plastic"},
			Confidence: 0.8,
			RawLabel:   "Plastic",
		}}
		_, err := NewCached(wasteType, cache, time.Hour, "http", WasteTypeVocabulary()).
			Predict(context.Background(), "a.jpg", []byte("same"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())

		p, err := cached.Predict(context.Background(), "a.jpg", []byte("same"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		Expect(next.calls).To(Equal(1))
		Expect(p.Category.Name).To(Equal(Biodegradable))
	})

	It("does not serve a prediction cached by another backend", func() {
		_, err := NewCached(next, cache, time.Hour, "gemini", BinaryVocabulary()).
			Predict(context.Background(), "a.jpg", []byte("same"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())

		_, err = cached.Predict(context.Background(), "a.jpg", []byte("same"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		Expect(next.calls).To(Equal(2))
	})

	It("discards a cached label that no longer resolves", func() {
		cache.values[cached.predictionKey([]byte("x"))] = `{"category":{"name":"Plastic","biodegradable":false},"confidence":0.8,"raw_label":"Plastic"}`

		p, err := cached.Predict(context.Background(), "a.jpg", []byte("x"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		Expect(next.calls).To(Equal(1))
		Expect(p.Category.Name).To(Equal(Biodegradable))
		Expect(cache.sets).To(Equal(1))
	})

	Describe("Ping", func() {
		It("reports that the wrapped predictor cannot be checked", func() {
			Expect(cached.Ping(context.Background())).To(MatchError(ErrPingUnsupported))
		})

		It("forwards to a predictor that can be checked", func() {
			down := errors.New("down")
			pinged := NewCached(&pingingPredictor{countingPredictor: next, err: down}, cache, time.Hour, "http", BinaryVocabulary())
			Expect(pinged.Ping(context.Background())).To(MatchError(down))
		})
	})
})
