package documents

// File is an uploaded document as received from the caller.
type File struct {
	Name     string
	MimeType string
	Data     []byte
	// Title overrides the name-derived title when non-blank.
	Title string
}

// ProcessedDocument is the text and size estimate derived from one File.
// It lives for a single conversion and is never persisted.
type ProcessedDocument struct {
	Text                     string
	Title                    string
	WordCount                int
	EstimatedDurationMinutes int
}
