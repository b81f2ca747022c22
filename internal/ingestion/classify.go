package ingestion

import (
	"bytes"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"
)

type kind struct {
	fileType    model.FileType
	contentType string
}

var allowed = map[string]kind{
	".xlsx": {model.FileTypeSpreadsheet, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	".xls":  {model.FileTypeSpreadsheet, "application/vnd.ms-excel"},
	".csv":  {model.FileTypeSpreadsheet, "text/csv"},
	".pdf":  {model.FileTypeDocument, "application/pdf"},
	".docx": {model.FileTypeDocument, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	".txt":  {model.FileTypeDocument, "text/plain"},
	".png":  {model.FileTypeImage, "image/png"},
	".jpg":  {model.FileTypeImage, "image/jpeg"},
	".jpeg": {model.FileTypeImage, "image/jpeg"},
	".webp": {model.FileTypeImage, "image/webp"},
}

// declaredCategory maps client supplied MIME types to a category. Types not
// listed (octet-stream and friends) defer to the extension.
var declaredCategory = map[string]model.FileType{
	"text/csv":                 model.FileTypeSpreadsheet,
	"application/csv":          model.FileTypeSpreadsheet,
	"application/vnd.ms-excel": model.FileTypeSpreadsheet,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       model.FileTypeSpreadsheet,
	"application/pdf":                                                         model.FileTypeDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": model.FileTypeDocument,
	"application/msword":                                                      model.FileTypeDocument,
	"image/png":                                                               model.FileTypeImage,
	"image/jpeg":                                                              model.FileTypeImage,
	"image/jpg":                                                               model.FileTypeImage,
	"image/webp":                                                              model.FileTypeImage,
}

var zipMagic = []byte("PK\x03\x04")

// classify decides the category of one upload from its extension, confirms it
// against the declared part type and sniffs the bytes of binary formats.
func classify(name, declared string, data []byte) (kind, error) {
	ext := strings.ToLower(filepath.Ext(name))
	k, ok := allowed[ext]
	if !ok {
		return kind{}, errs.Validation("%s: unsupported file type %q", name, ext)
	}
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		if cat, known := declaredCategory[mt]; known && cat != k.fileType {
			return kind{}, errs.Validation("%s: declared type %s does not match the file extension", name, mt)
		}
	}

	sniffed := http.DetectContentType(head(data))
	switch ext {
	case ".pdf":
		if sniffed != "application/pdf" {
			return kind{}, errs.Validation("%s: content is not a PDF document", name)
		}
	case ".png", ".jpg", ".jpeg", ".webp":
		if sniffed != k.contentType {
			return kind{}, errs.Validation("%s: content is not a %s image", name, strings.TrimPrefix(k.contentType, "image/"))
		}
	case ".xlsx", ".docx":
		if !bytes.HasPrefix(data, zipMagic) {
			return kind{}, errs.Validation("%s: content is not an Office Open XML file", name)
		}
	}
	return k, nil
}

func head(data []byte) []byte {
	if len(data) > 512 {
		return data[:512]
	}
	return data
}
