package documents

import "errors"

// ErrUnsupportedFormat means no readable text could be extracted from the file.
var ErrUnsupportedFormat = errors.New("unsupported document format")
