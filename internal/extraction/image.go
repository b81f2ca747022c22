package extraction

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"
)

const manualEntryRequired = "image could not be read automatically; manual entry required"

// VisionGenerator is the image understanding service.
type VisionGenerator interface {
	GenerateFromImage(ctx context.Context, prompt, format string, image []byte) (string, error)
}

// Image sends scanned statements to the vision model. A failed vision call,
// or a reply without a transaction list, fails the statement so operators
// know to key the rows in by hand.
type Image struct {
	AI VisionGenerator
}

func (i Image) Extract(ctx context.Context, f File) ([]model.NormalizedTransaction, error) {
	format := imageFormat(f)
	if format == "" {
		return nil, errs.Validation("unsupported image format %q", filepath.Ext(f.Name))
	}
	reply, err := i.AI.GenerateFromImage(ctx, extractionPrompt, format, f.Data)
	if err != nil {
		return nil, errs.External(manualEntryRequired, err)
	}
	if _, ok := jsonArray(reply); !ok {
		return nil, errs.External(manualEntryRequired, fmt.Errorf("vision reply has no transaction list: %.200q", reply))
	}
	return parseAIRows(reply, model.ImageConfidence, model.SourceImage)
}

func imageFormat(f File) string {
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".webp":
		return "webp"
	}
	switch f.ContentType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpeg"
	case "image/webp":
		return "webp"
	}
	return ""
}
