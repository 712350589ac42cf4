// Package export renders printable catalogue reports as PDF.
package export

import "errors"

// Request contains parameters for a report export.
type Request struct {
	Title          string
	IncludeNotices bool
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates the headless browser used for PDF
// rendering is unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
