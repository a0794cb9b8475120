package llm

import "context"

// VisionClassifier binds a Client to one vision model so the capture loop can
// treat classification as (image, prompts) -> text.
type VisionClassifier struct {
	client *Client
	model  string
}

// NewVisionClassifier wires a classifier around an existing client.
func NewVisionClassifier(client *Client, model string) *VisionClassifier {
	return &VisionClassifier{client: client, model: model}
}

// ClassifyFrame describes one screenshot. Output is free text that should
// contain a JSON object; callers normalize defensively.
func (v *VisionClassifier) ClassifyFrame(ctx context.Context, image []byte, systemPrompt, userPrompt string) (string, error) {
	return v.client.DescribeImage(ctx, v.model, systemPrompt, userPrompt, image, "image/png")
}
