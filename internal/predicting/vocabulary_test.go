package predicting

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Vocabulary", func() {
	Describe("BinaryVocabulary", func() {
		It("accepts both spellings of each class", func() {
			v := BinaryVocabulary()
			for _, label := range []string{"bio-degradable", "Biodegradable", "non-biodegradable", "NON-BIO-DEGRADABLE"} {
				_, ok := v.Lookup(label)
				Expect(ok).To(BeTrue(), label)
			}
		})
	})

	Describe("WasteTypeVocabulary", func() {
		It("marks paper as biodegradable", func() {
			c, ok := WasteTypeVocabulary().Lookup("paper")
			Expect(ok).To(BeTrue())
			Expect(c).To(Equal(Category{Name: "Paper", Biodegradable: true}))
		})

		It("lists labels in declaration order", func() {
			Expect(WasteTypeVocabulary().Labels()).To(Equal([]string{"Plastic", "Paper", "Metal", "Others"}))
		})
	})

	Describe("NewVocabulary", func() {
		It("rejects duplicates", func() {
			_, err := NewVocabulary([]VocabularyEntry{
				{Label: "glass", Category: "Glass"},
				{Label: "GLASS", Category: "Glass"},
			})
			Expect(err).To(MatchError(ContainSubstring("duplicate")))
		})

		It("rejects entries without a category", func() {
			_, err := NewVocabulary([]VocabularyEntry{{Label: "glass"}})
			Expect(err).To(HaveOccurred())
		})

		It("rejects an empty list", func() {
			_, err := NewVocabulary(nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("VocabularyByName", func() {
		It("defaults to binary", func() {
			v, err := VocabularyByName("")
			Expect(err).NotTo(HaveOccurred())
			_, ok := v.Lookup("bio-degradable")
			Expect(ok).To(BeTrue())
		})

		It("rejects unknown names", func() {
			_, err := VocabularyByName("compost")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Fingerprint", func() {
		It("ignores declaration order and label case", func() {
			reordered, err := NewVocabulary([]VocabularyEntry{
				{Label: "others", Category: "Others"},
				{Label: "METAL", Category: "Metal"},
				{Label: "paper", Category: "Paper", Biodegradable: true},
				{Label: "plastic", Category: "Plastic"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reordered.Fingerprint()).To(Equal(WasteTypeVocabulary().Fingerprint()))
		})

		It("differs between vocabularies", func() {
			Expect(BinaryVocabulary().Fingerprint()).NotTo(Equal(WasteTypeVocabulary().Fingerprint()))
		})

		It("changes when a category changes", func() {
			changed, err := NewVocabulary([]VocabularyEntry{
				{Label: "Plastic", Category: "Plastic"},
				{Label: "Paper", Category: "Paper"},
				{Label: "Metal", Category: "Metal"},
				{Label: "Others", Category: "Others"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(changed.Fingerprint()).NotTo(Equal(WasteTypeVocabulary().Fingerprint()))
		})
	})

	Describe("LoadVocabulary", func() {
		var dir string

		BeforeEach(func() {
			var err error
			dir, err = os.MkdirTemp("", "vocabulary-test-*")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			os.RemoveAll(dir)
		})

		It("reads labels from YAML", func() {
			path := filepath.Join(dir, "labels.yaml")
			Expect(os.WriteFile(path, []byte(`labels:
  - label: food
    category: Organic
    biodegradable: true
  - label: glass
    category: Glass
`), 0644)).To(Succeed())

			v, err := LoadVocabulary(path)
			Expect(err).NotTo(HaveOccurred())
			c, ok := v.Lookup("Food")
			Expect(ok).To(BeTrue())
			Expect(c).To(Equal(Category{Name: "Organic", Biodegradable: true}))
		})

		It("returns an error for a missing file", func() {
			_, err := LoadVocabulary(filepath.Join(dir, "missing.yaml"))
			Expect(err).To(HaveOccurred())
		})

		It("returns an error for invalid YAML", func() {
			path := filepath.Join(dir, "bad.yaml")
			Expect(os.WriteFile(path, []byte("labels: [this is: not valid"), 0644)).To(Succeed())
			_, err := LoadVocabulary(path)
			Expect(err).To(HaveOccurred())
		})
	})
})
