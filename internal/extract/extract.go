package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Format is the extraction strategy chosen for an upload.
type Format string

const (
	FormatText          Format = "text"
	FormatPDF           Format = "pdf"
	FormatDOCX          Format = "docx"
	FormatWordProcessor Format = "word-processor"
	FormatUnknown       Format = "unknown"
)

const (
	mimeText = "text/plain"
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeZip  = "application/zip"
)

// WordProcessorPlaceholder is returned for word-processor formats that have no parser.
const WordProcessorPlaceholder = "Word document text extraction would be implemented here."

var (
	ErrNotText     = errors.New("payload is not valid UTF-8 text")
	ErrMissingPart = errors.New("document.xml file not found")
	// ErrMalformedPDF wraps a parser failure inside the object graph.
	ErrMalformedPDF = errors.New("malformed pdf")
)

// FromBytes extracts plain text from an in-memory upload.
func FromBytes(ctx context.Context, data []byte, mimeType, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch format := Detect(mimeType, fileName, data); format {
	case FormatText:
		return decodeText(data)
	case FormatPDF:
		text, err := extractPDF(data)
		if err != nil {
			return "", fmt.Errorf("extract pdf %s: %w", fileName, err)
		}
		return text, nil
	case FormatDOCX:
		text, err := extractDOCX(data)
		if err != nil {
			return "", fmt.Errorf("extract docx %s: %w", fileName, err)
		}
		return text, nil
	case FormatWordProcessor:
		return WordProcessorPlaceholder, nil
	default:
		return decodeText(data)
	}
}

// Detect picks the extraction strategy from the declared MIME type, falling
// back to the file extension when the type is missing or generic.
func Detect(mimeType, fileName string, data []byte) Format {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch {
	case clean == mimeText:
		return FormatText
	case clean == mimePDF:
		return FormatPDF
	case clean == mimeDOCX:
		return FormatDOCX
	case clean == mimeZip:
		if isDOCXArchive(data) {
			return FormatDOCX
		}
		return FormatUnknown
	case clean == "application/msword" || clean == "application/rtf" || clean == "text/rtf",
		strings.Contains(clean, "word") || strings.Contains(clean, "document"):
		return FormatWordProcessor
	case clean == "" || clean == "application/octet-stream":
		return fromExtension(fileName)
	}
	return FormatUnknown
}

func fromExtension(fileName string) Format {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".text", ".md":
		return FormatText
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".doc", ".odt", ".rtf":
		return FormatWordProcessor
	}
	return FormatUnknown
}

func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", ErrNotText
	}
	return string(data), nil
}

// extractPDF turns parser panics on malformed objects into errors.
func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrMalformedPDF, r)
		}
	}()
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	docFile := findPart(zr, "word/document.xml")
	if docFile == nil {
		return "", ErrMissingPart
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	return paragraphsFromXML(rc)
}

// paragraphsFromXML keeps run text (w:t) and breaks lines at paragraph and
// line-break elements. Tabs become spaces so words stay separated.
func paragraphsFromXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var buf strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				buf.WriteByte(' ')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p", "br":
				if buf.Len() > 0 {
					buf.WriteByte('\n')
				}
			}
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

func isDOCXArchive(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	return findPart(zr, "word/document.xml") != nil
}

func findPart(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == name {
			return f
		}
	}
	return nil
}
