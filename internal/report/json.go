package report

import (
	"encoding/json"
	"io"
)

// JSONRenderer renders a Document as JSON.
type JSONRenderer struct {
	// Indent controls pretty-printing.
	Indent bool
}

func (r *JSONRenderer) Render(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if r.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(doc)
}
