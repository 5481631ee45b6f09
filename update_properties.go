package pdfmu

import (
	"github.com/digitorus/pdfmu/document"
	"github.com/digitorus/pdfmu/metadata"
	"github.com/digitorus/pdfmu/output"
)

type propertiesUpdate struct {
	session  *Session
	updates  map[string]string
	warnings []metadata.Warning
}

func (u *propertiesUpdate) Name() string { return "update-properties" }

func (u *propertiesUpdate) Prepare(*document.Handle) (bool, error) {
	return true, nil
}

func (u *propertiesUpdate) Apply(doc *document.Handle, tx *output.Transaction) error {
	w, err := newRevision(doc, tx)
	if err != nil {
		return err
	}
	now := u.session.now()
	u.warnings, err = metadata.Apply(doc.Info(), u.updates, w, now)
	if err != nil {
		return writeFailure(tx, err)
	}
	if err := w.Close(now); err != nil {
		return writeFailure(tx, err)
	}
	return nil
}

// UpdateProperties merges updates into the document information of in. An
// empty value removes a property. Reserved properties are never changed;
// the returned warnings name them.
func UpdateProperties(s *Session, in string, target output.Target, updates map[string]string) (*EmptyResult, []metadata.Warning, error) {
	u := &propertiesUpdate{session: s, updates: updates}
	if err := s.Run(in, target, u); err != nil {
		return nil, u.warnings, err
	}
	return &EmptyResult{}, u.warnings, nil
}
