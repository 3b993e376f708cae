package predicting

import (
	"fmt"
	"strings"
)

// classificationPrompt is shared by the language model backends
func classificationPrompt(vocabulary *Vocabulary) string {
	quoted := make([]string, 0, len(vocabulary.Labels()))
	for _, l := range vocabulary.Labels() {
		quoted = append(quoted, fmt.Sprintf("%q", l))
	}

	return fmt.Sprintf(`You are classifying a photo of a single waste item so it can be sorted into the right bin.
Look at the main object in the image and decide which one of these labels fits it best: %s.

Return ONLY valid JSON in this exact format:
{
  "label": "one of the labels above",
  "confidence": 0.0
}

Important:
- "label" must be copied exactly from the list above
- "confidence" must be a number between 0 and 1 describing how sure you are
- Do not include any text before or after the JSON
- Do not use markdown code blocks`, strings.Join(quoted, ", "))
}
