package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_PlainText(t *testing.T) {
	out, err := Text("notes.txt", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestText_Markdown(t *testing.T) {
	out, err := Text("README.md", []byte("# Title"))
	require.NoError(t, err)
	assert.Equal(t, "# Title", out)
}

func TestText_UnsupportedExtension(t *testing.T) {
	_, err := Text("slides.pptx", []byte("data"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestText_ExtensionCaseInsensitive(t *testing.T) {
	out, err := Text("UPPER.TXT", []byte("content"))
	require.NoError(t, err)
	assert.Equal(t, "content", out)
}

func TestText_MalformedPDFDegradesToEmpty(t *testing.T) {
	out, err := Text("broken.pdf", []byte("not actually a pdf"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestText_MalformedDocxDegradesToEmpty(t *testing.T) {
	out, err := Text("broken.docx", []byte("not a zip archive"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestText_DocxParagraphs(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body>
    <p><r><t>First paragraph.</t></r></p>
    <p><r><t>Second </t></r><r><t>paragraph.</t></r></p>
    <p></p>
  </body>
</document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(docXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	out, err := Text("doc.docx", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", out)
}

func TestText_EmptyInput(t *testing.T) {
	out, err := Text("empty.pdf", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
