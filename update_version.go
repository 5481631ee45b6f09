package pdfmu

import (
	"errors"
	"log"

	"github.com/digitorus/pdfmu/document"
	"github.com/digitorus/pdfmu/output"
	"github.com/digitorus/pdfmu/revision"
	"github.com/digitorus/pdfmu/version"
)

var errHeaderPatch = errors.New("could not rewrite the %PDF- header")

type versionUpdate struct {
	session     *Session
	requested   version.Version
	allowLower  bool
	onlyIfLower bool

	target version.Version
	result VersionResult
}

func (u *versionUpdate) Name() string { return "update-version" }

func (u *versionUpdate) Prepare(doc *document.Handle) (bool, error) {
	current := doc.Version()
	log.Printf("Input PDF version: %s", current)

	target, change, err := version.Plan(current, u.requested, u.allowLower, u.onlyIfLower)
	if err != nil {
		return false, err
	}
	if !change {
		log.Printf("The PDF version %s is not lower than %s. Keeping the document unchanged (--only-if-lower).", current, u.requested)
		u.result = VersionResult{Version: current.String()}
		return false, nil
	}
	if target.Less(current) {
		log.Printf("Warning: lowering the PDF version from %s to %s (--allow-lower).", current, target)
	}
	u.target = target
	return true, nil
}

// Apply writes the version to the catalog. A version below the header
// cannot be expressed in the catalog, so the header itself is rewritten
// and the catalog entry removed.
func (u *versionUpdate) Apply(doc *document.Handle, tx *output.Transaction) error {
	w, err := newRevision(doc, tx)
	if err != nil {
		return err
	}
	catalog := doc.Reader().Trailer().Key("Root")

	var body []byte
	if u.target.Less(doc.HeaderVersion()) {
		if !revision.PatchHeader(tx.Bytes(), u.target.String()) {
			return writeFailure(tx, errHeaderPatch)
		}
		body = revision.Dict(catalog, nil, "Version")
	} else {
		body = revision.Dict(catalog, map[string]string{"Version": revision.Name(u.target.String())})
	}
	if err := w.WriteObject(w.Root(), body); err != nil {
		return writeFailure(tx, err)
	}
	if err := w.Close(u.session.now()); err != nil {
		return writeFailure(tx, err)
	}

	log.Printf("Output PDF version: %s", u.target)
	u.result = VersionResult{Version: u.target.String(), Changed: true}
	return nil
}

// UpdateVersion sets the version of the document at in. Lowering the version
// requires allowLower. With onlyIfLower a document already at or above the
// requested version is left alone and no output is written. An invalid
// requested version selects version.Default.
func UpdateVersion(s *Session, in string, target output.Target, requested version.Version, allowLower, onlyIfLower bool) (*VersionResult, error) {
	if !requested.Valid() {
		requested = version.Default
	}
	u := &versionUpdate{
		session:     s,
		requested:   requested,
		allowLower:  allowLower,
		onlyIfLower: onlyIfLower,
	}
	if err := s.Run(in, target, u); err != nil {
		return nil, err
	}
	return &u.result, nil
}
