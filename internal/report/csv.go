package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CSVRenderer writes one line per finding, or one line per file when the
// Document has no findings.
type CSVRenderer struct{}

func (r *CSVRenderer) Render(w io.Writer, doc *Document) error {
	cw := csv.NewWriter(w)
	if len(doc.Findings) == 0 && len(doc.Files) > 0 {
		if err := cw.Write([]string{"input", "output", "format", "records", "failed", "findings", "error"}); err != nil {
			return err
		}
		for _, f := range doc.Files {
			if err := cw.Write([]string{
				f.Input,
				f.Output,
				string(f.Format),
				strconv.FormatInt(f.Records, 10),
				strconv.FormatInt(f.Failed, 10),
				strconv.FormatInt(f.Findings, 10),
				f.Error,
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}

	if err := cw.Write([]string{"input", "type", "original", "replacement", "start", "end", "source", "confidence"}); err != nil {
		return err
	}
	for _, f := range doc.Findings {
		if err := cw.Write([]string{
			f.Input,
			string(f.Type),
			f.Original,
			f.Replacement,
			strconv.Itoa(f.Start),
			strconv.Itoa(f.End),
			f.Source,
			strconv.FormatFloat(f.Confidence, 'f', 2, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
