package llm

import (
	"github.com/pavelanni/examforge/internal/ingest"
	"github.com/pavelanni/examforge/internal/model"
)

// BuildRequest assembles the ordered content sequence for one generation
// attempt: the instruction text first, then one part per asset in the
// order given. It does not modify assets.
func BuildRequest(assets []model.UploadedAsset, instructions string) model.GenerationRequest {
	parts := make([]model.Part, 0, len(assets)+1)
	parts = append(parts, model.Part{Kind: model.PartText, Text: instructions})
	for _, a := range assets {
		parts = append(parts, assetPart(a))
	}
	return model.GenerationRequest{
		Instructions: instructions,
		Assets:       append([]model.UploadedAsset(nil), assets...),
		Parts:        parts,
	}
}

func assetPart(a model.UploadedAsset) model.Part {
	if a.Kind == model.AssetText {
		return model.Part{Kind: model.PartText, Label: a.DisplayName, Text: referenceText(a.DisplayName, a.Payload)}
	}
	mimeType, body, ok := ingest.SplitDataURL(a.Payload)
	if !ok {
		// Payload without a data URL header is taken as a bare base64 body.
		mimeType, body = a.MimeType, a.Payload
	}
	return model.Part{Kind: model.PartBinary, Label: a.DisplayName, MimeType: mimeType, Data: body}
}

func referenceText(name, text string) string {
	return "Reference Document (" + name + "):\n" + text
}
