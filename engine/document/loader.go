package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/pkg/logger"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const mimePDF = "application/pdf"

// Document is normalized text extracted from a file.
type Document struct {
	Source string
	MIME   string
	Text   string
}

// pdfExtractor is swapped in tests.
var pdfExtractor = extractPDF

// Load reads path, sniffs its type, and returns normalized text.
// PDFs are decoded with ledongthuc/pdf; anything textual is read as UTF-8,
// transcoding when the bytes are in another charset.
func Load(ctx context.Context, path string) (*Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, core.NewError(errors.New("document path is required"), core.ErrCodeValidation, nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("document: stat %q: %w", path, err),
			core.ErrCodeValidation,
			map[string]any{"path": path},
		)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, core.NewError(
			fmt.Errorf("document: %q is empty or not a regular file", path),
			core.ErrCodeValidation,
			map[string]any{"path": path},
		)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("document: detect type of %q: %w", path, err)
	}
	mime := mt.String()
	var text string
	switch {
	case mt.Is(mimePDF):
		text, err = pdfExtractor(path)
	case isTextual(mt):
		text, err = readText(path, mime)
	default:
		return nil, core.NewError(
			fmt.Errorf("document: unsupported content type %s", mime),
			core.ErrCodeValidation,
			map[string]any{"path": path, "mime": mime},
		)
	}
	if err != nil {
		return nil, err
	}
	text = Normalize(text)
	if text == "" {
		return nil, core.NewError(
			fmt.Errorf("document: no text extracted from %q", path),
			core.ErrCodeValidation,
			map[string]any{"path": path, "mime": mime},
		)
	}
	logger.FromContext(ctx).Debug(
		"Document loaded",
		"source", filepath.Base(path),
		"mime", mime,
		"chars", utf8.RuneCountInString(text),
	)
	return &Document{Source: path, MIME: mime, Text: text}, nil
}

func isTextual(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func readText(path string, mime string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("document: read %q: %w", path, err)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	enc, name, _ := charset.DetermineEncoding(data, mime)
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("document: transcode %q from %s: %w", path, name, err)
	}
	return string(decoded), nil
}

// extractPDF treats the decoder as opaque: bytes in, plain text out.
// The decoder panics on some malformed files, so panics become errors.
func extractPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("document: malformed pdf %q: %v", path, r)
		}
	}()
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("document: open pdf %q: %w", path, err)
	}
	defer f.Close()
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("document: read pdf text %q: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("document: read pdf buffer %q: %w", path, err)
	}
	return buf.String(), nil
}
