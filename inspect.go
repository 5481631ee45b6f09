package pdfmu

import (
	"time"

	"github.com/digitorus/pdfmu/document"
)

// Inspect reports the version, the document information and the signature
// fields of the document at in. Nothing is written.
func Inspect(in string) (*InspectResult, error) {
	doc, err := document.Open(in)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	res := &InspectResult{
		Version:    doc.Version().String(),
		Header:     doc.HeaderVersion().String(),
		Size:       doc.Size(),
		Encrypted:  doc.Encrypted(),
		Properties: doc.Info(),
		Signatures: []SignatureResult{},
	}
	for _, sig := range doc.Signatures() {
		r := SignatureResult{
			Name:     sig.Name,
			Signed:   sig.Signed,
			Filter:   sig.Filter,
			Reason:   sig.Reason,
			Location: sig.Location,
			Contact:  sig.Contact,
		}
		if !sig.Date.IsZero() {
			r.Date = sig.Date.Format(time.RFC3339)
		}
		res.Signatures = append(res.Signatures, r)
	}
	return res, nil
}
