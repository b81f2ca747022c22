package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"
)

// maxPromptText bounds the statement text sent to the model.
const maxPromptText = 120_000

// TextGenerator is the text understanding service.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Document extracts text from .pdf, .docx and .txt statements and asks the
// text model for the transactions in it.
type Document struct {
	AI TextGenerator
}

func (d Document) Extract(ctx context.Context, f File) ([]model.NormalizedTransaction, error) {
	text, err := documentText(f)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.Validation("document %s contains no readable text", f.Name)
	}
	text = truncateUTF8(text, maxPromptText)
	reply, err := d.AI.GenerateText(ctx, extractionPrompt+"\n\nStatement text:\n"+text)
	if err != nil {
		return nil, err
	}
	return parseAIRows(reply, model.DocumentConfidence, model.SourceDocument)
}

func documentText(f File) (string, error) {
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".pdf":
		return pdfText(f.Data)
	case ".docx":
		return docxText(f.Data)
	case ".txt":
		if utf8.Valid(f.Data) {
			return string(f.Data), nil
		}
		out, err := charmap.Windows1252.NewDecoder().Bytes(f.Data)
		if err != nil {
			return "", errs.Validation("unreadable text file: %v", err)
		}
		return string(out), nil
	}
	return "", errs.Validation("unsupported document format %q", filepath.Ext(f.Name))
}

func pdfText(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", errs.Validation("unreadable pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errs.Validation("unreadable pdf: %v", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", errs.Validation("unreadable pdf: %v", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", errs.Validation("unreadable pdf: %v", err)
	}
	return string(b), nil
}

// docxText returns the paragraph text of word/document.xml.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errs.Validation("unreadable docx: %v", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errs.Validation("unreadable docx: missing word/document.xml")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", errs.Validation("unreadable docx: %v", err)
	}
	defer rc.Close()

	var b strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errs.Validation("unreadable docx: %v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			case "tc":
				b.WriteByte('\t')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
