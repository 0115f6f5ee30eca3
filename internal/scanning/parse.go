package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// detectionResponse mirrors the JSON object the vision models are asked to return.
// Text is a pointer so an explicit null reads as "no barcode".
type detectionResponse struct {
	Text       *string  `json:"text"`
	Format     string   `json:"format"`
	Confidence *float64 `json:"confidence"`
}

// parseDetectionJSON parses a model response into a candidate.
// It returns nil, nil when the model reports that no barcode is visible.
func parseDetectionJSON(text string) (*Candidate, error) {
	text = strings.TrimSpace(text)

	// Remove opening markdown code blocks
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var resp detectionResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	if resp.Text == nil || strings.TrimSpace(*resp.Text) == "" {
		return nil, nil
	}

	// Models that omit confidence are treated as certain; out of range values are clamped
	confidence := 1.0
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	format := strings.ToUpper(strings.TrimSpace(resp.Format))
	if format == "" {
		format = "UNKNOWN"
	}

	return &Candidate{
		Text:       strings.TrimSpace(*resp.Text),
		Confidence: confidence,
		Format:     format,
	}, nil
}
