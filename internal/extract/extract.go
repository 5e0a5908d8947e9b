package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/bidforge/backend/pkg/logger"
)

// ErrUnsupportedFormat rejects an upload before any extraction runs. The
// caller can fix the input; nothing is retried.
var ErrUnsupportedFormat = errors.New("unsupported file type, use PDF, DOCX, or TXT")

// Text extracts plain text from an uploaded file, dispatching on the
// filename extension. Malformed content degrades to an empty string so the
// pipeline keeps going; only an unknown extension is an error.
func Text(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return pdfText(data), nil
	case ".docx":
		return docxText(data), nil
	case ".txt", ".md":
		return strings.ToValidUTF8(string(data), ""), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

func pdfText(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	// The pdf package panics on some malformed files; treat those as
	// unextractable rather than crashing the upload.
	defer func() {
		_ = recover()
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		logger.Warn("PDF parse failed, continuing with empty text", zap.Error(err))
		return ""
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		logger.Warn("PDF text extraction failed, continuing with empty text", zap.Error(err))
		return ""
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
