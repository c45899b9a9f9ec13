// Package render builds presentation payloads for customer-facing
// documents. The payloads are transport-neutral: a PDF service, an email
// template or the JSON API can all consume them.
package render

import "context"

// DocumentKind identifies the document a payload describes.
type DocumentKind string

const (
	DocInvoice   DocumentKind = "invoice"
	DocReceipt   DocumentKind = "receipt"
	DocStatement DocumentKind = "statement"
)

// Document is a rendered artifact: the payload plus its kind and a
// suggested filename.
type Document struct {
	Kind     DocumentKind `json:"kind"`
	Filename string       `json:"filename"`
	Payload  any          `json:"payload"`
}

// Renderer turns a document payload into final bytes (HTML, PDF, plain
// text). The core only builds payloads; rendering engines plug in here.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, string, error)
}
