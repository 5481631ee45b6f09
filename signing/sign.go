package signing

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"

	"github.com/digitorus/pdfmu/document"
	"github.com/digitorus/pdfmu/keystore"
	"github.com/digitorus/pdfmu/operation"
	"github.com/digitorus/pdfmu/revision"
	"github.com/digitorus/pdfmu/revocation"
)

const byteRangePlaceholder = "/ByteRange[0 ********** ********** **********]"

// maxAttempts bounds how often the revision is rebuilt with a larger
// signature reservation.
const maxAttempts = 3

// ErrNoPage is returned when the page tree has no page to attach the
// signature widget to.
var ErrNoPage = errors.New("could not find first page")

// Stage is the staged output document. It must already hold a copy of the
// input document. Bytes returns the staged content itself, changes to it
// are changes to the stage.
type Stage interface {
	io.Writer
	Len() int64
	Bytes() []byte
	Truncate(n int64) error
}

// signContext holds the state of one signature.
type signContext struct {
	provider *Provider
	doc      *document.Handle
	stage    Stage
	key      *keystore.KeyMaterial
	params   Parameters
	hash     crypto.Hash
	date     time.Time

	fieldName  string
	revocation revocation.InfoArchival

	// reserved is the number of signature bytes the /Contents placeholder
	// can hold.
	reserved int
	base     int64

	byteRangeAt   int64
	byteRange     [4]int64
	contentsStart int64
}

// Sign appends a revision to stage that adds an invisible signature field
// signed with km. The digest algorithm is validated before anything is
// written.
func Sign(p *Provider, doc *document.Handle, stage Stage, km *keystore.KeyMaterial, params Parameters) error {
	hash, err := ParseDigest(params.DigestAlgorithm)
	if err != nil {
		return err
	}
	if doc.Encrypted() {
		return operation.New(operation.InputNotValidFormat, revision.ErrEncrypted,
			operation.A("inputFile", doc.Path()), operation.A("reason", revision.ErrEncrypted.Error()))
	}
	if km == nil || len(km.Chain) == 0 || km.Signer == nil {
		return operation.New(operation.SigningFailed, keystore.ErrNoChain, operation.A("reason", keystore.ErrNoChain.Error()))
	}

	ctx := &signContext{
		provider:  p,
		doc:       doc,
		stage:     stage,
		key:       km,
		params:    params,
		hash:      hash,
		date:      params.Appearance.Date,
		fieldName: doc.NextSignatureName(),
		base:      stage.Len(),
	}
	if ctx.date.IsZero() {
		ctx.date = p.now()
	}
	for _, w := range keyUsageWarnings(km.Certificate()) {
		log.Printf("Warning: %s.", w)
	}

	if err := ctx.run(); err != nil {
		var f *operation.Failure
		if errors.As(err, &f) {
			return err
		}
		return signingFailure(err)
	}
	log.Printf("Signed the document as %s in field %s (%s, %s).", signerName(km.Certificate()), ctx.fieldName, ctx.hash, ctx.params.Standard)
	return nil
}

func (ctx *signContext) run() error {
	if ctx.params.Revocation != nil {
		if err := revocation.Collect(ctx.params.Revocation, ctx.key.Chain, &ctx.revocation); err != nil {
			return fmt.Errorf("failed to fetch revocation data: %w", err)
		}
	}

	reserved, err := ctx.estimateSize()
	if err != nil {
		return err
	}
	ctx.reserved = reserved

	for attempt := 1; ; attempt++ {
		if err := ctx.stage.Truncate(ctx.base); err != nil {
			return err
		}
		if err := ctx.writeRevision(); err != nil {
			return err
		}
		if err := ctx.updateByteRange(); err != nil {
			return err
		}

		signature, err := ctx.createSignature()
		if err != nil {
			return err
		}
		if len(signature) <= ctx.reserved {
			return ctx.replaceSignature(signature)
		}
		if attempt == maxAttempts {
			return fmt.Errorf("signature of %d bytes does not fit the reserved %d bytes", len(signature), ctx.reserved)
		}
		log.Printf("Signature of %d bytes does not fit the reserved %d bytes. Retrying.", len(signature), ctx.reserved)
		ctx.reserved = len(signature) + 64
	}
}

// estimateSize returns the number of bytes to reserve for the signature.
func (ctx *signContext) estimateSize() (int, error) {
	size := 512

	cert := ctx.key.Certificate()
	sigSize, err := publicKeySignatureSize(cert.PublicKey)
	if err != nil {
		sigSize = defaultSignatureSize
	}
	size += sigSize

	// Digest of the document and of the signing certificate attribute.
	size += ctx.hash.Size() * 2

	for _, c := range ctx.key.Chain {
		degenerated, err := pkcs7.DegenerateCertificate(c.Raw)
		if err != nil {
			return 0, fmt.Errorf("failed to degenerate certificate: %w", err)
		}
		size += len(degenerated)
	}
	// AddSignerChain adds the raw issuer.
	size += len(cert.RawIssuer)

	size += ctx.revocation.Size()

	// Responses differ per TSA; this fits the common ones.
	if ctx.params.TSA != nil && ctx.params.TSA.URL != "" {
		size += 9000
	}
	return size, nil
}

// writeRevision writes the signature dictionary, the widget, the page and
// the catalog, then closes the revision.
func (ctx *signContext) writeRevision() error {
	rdr := ctx.doc.Reader()
	w, err := revision.New(rdr, ctx.doc.ReaderAt(), ctx.doc.Size(), ctx.stage, ctx.base)
	if err != nil {
		return err
	}

	root := rdr.Trailer().Key("Root")
	page, err := findFirstPage(root.Key("Pages"), 0)
	if err != nil {
		return err
	}
	pageRef := revision.RefOf(page)
	if pageRef.IsZero() {
		return ErrNoPage
	}

	sigRef := w.Reserve()
	widgetRef := w.Reserve()

	if err := w.WriteObject(sigRef, ctx.signatureDictionary()); err != nil {
		return err
	}

	widget := "<< /Type /Annot /Subtype /Widget /Rect [0 0 0 0] /P " + pageRef.String() +
		" /F 132 /FT /Sig /T " + revision.String(ctx.fieldName) + " /Ff 0 /V " + sigRef.String() + " >>"
	if err := w.WriteObject(widgetRef, []byte(widget)); err != nil {
		return err
	}

	annots := revision.Array(page.Key("Annots"), widgetRef.String())
	if err := w.WriteObject(pageRef, revision.Dict(page, map[string]string{"Annots": annots})); err != nil {
		return err
	}

	catalog := map[string]string{}
	acroForm := root.Key("AcroForm")
	form := revision.Dict(acroForm, map[string]string{
		"Fields":   revision.Array(acroForm.Key("Fields"), widgetRef.String()),
		"SigFlags": "3",
	}, "NeedAppearances")
	if ref := revision.RefOf(acroForm); acroForm.Kind() == pdf.Dict && !ref.IsZero() && ref != revision.RefOf(root) {
		if err := w.WriteObject(ref, form); err != nil {
			return err
		}
		catalog["AcroForm"] = ref.String()
	} else {
		catalog["AcroForm"] = string(form)
	}
	if ctx.params.Appearance.CertificationLevel != NotCertified {
		catalog["Perms"] = string(revision.Dict(root.Key("Perms"), map[string]string{"DocMDP": sigRef.String()}))
	}
	if err := w.WriteObject(w.Root(), revision.Dict(root, catalog)); err != nil {
		return err
	}

	if err := w.Close(ctx.date); err != nil {
		return err
	}
	return ctx.locatePlaceholders(w, sigRef)
}

// signatureDictionary returns the signature dictionary with placeholders
// for /ByteRange and /Contents.
func (ctx *signContext) signatureDictionary() []byte {
	var b bytes.Buffer
	b.WriteString("<< /Type /Sig")
	b.WriteString(" /Filter /Adobe.PPKLite")
	b.WriteString(" /SubFilter /" + ctx.params.Standard.SubFilter())
	b.WriteString(" " + byteRangePlaceholder)
	b.WriteString(" /Contents<")
	b.Write(bytes.Repeat([]byte("0"), hex.EncodedLen(ctx.reserved)))
	b.WriteString(">")

	if level := ctx.params.Appearance.CertificationLevel; level != NotCertified {
		b.WriteString(" /Reference [ << /Type /SigRef")
		b.WriteString(" /TransformMethod /DocMDP")
		b.WriteString(" /TransformParams << /Type /TransformParams")
		b.WriteString(" /P " + strconv.Itoa(int(level)))
		b.WriteString(" /V /1.2 >> >> ]")
	}

	appearance := ctx.params.Appearance
	if appearance.Name != "" {
		b.WriteString(" /Name " + revision.String(appearance.Name))
	}
	if appearance.Location != "" {
		b.WriteString(" /Location " + revision.String(appearance.Location))
	}
	if appearance.Reason != "" {
		b.WriteString(" /Reason " + revision.String(appearance.Reason))
	}
	if appearance.Contact != "" {
		b.WriteString(" /ContactInfo " + revision.String(appearance.Contact))
	}
	b.WriteString(" /M " + revision.DateTime(ctx.date))
	b.WriteString(" >>")
	return b.Bytes()
}

// locatePlaceholders finds the /ByteRange and /Contents placeholders of the
// signature dictionary in the staged output.
func (ctx *signContext) locatePlaceholders(w *revision.Writer, sigRef revision.Ref) error {
	offset, ok := w.ObjectOffset(sigRef.ID)
	if !ok {
		return fmt.Errorf("signature object %d was not written", sigRef.ID)
	}
	content := ctx.stage.Bytes()[offset:]

	br := bytes.Index(content, []byte(byteRangePlaceholder))
	contents := bytes.Index(content, []byte("/Contents<"))
	if br < 0 || contents < 0 {
		return errors.New("signature placeholders not found")
	}
	ctx.byteRangeAt = offset + int64(br)
	ctx.contentsStart = offset + int64(contents) + int64(len("/Contents"))
	return nil
}

// updateByteRange fills the /ByteRange placeholder. The signed ranges cover
// the whole output except the /Contents value including its brackets.
func (ctx *signContext) updateByteRange() error {
	content := ctx.stage.Bytes()
	contentsEnd := ctx.contentsStart + int64(hex.EncodedLen(ctx.reserved)) + 2
	total := int64(len(content))

	ctx.byteRange = [4]int64{0, ctx.contentsStart, contentsEnd, total - contentsEnd}

	value := fmt.Sprintf("/ByteRange[%d %d %d %d]", ctx.byteRange[0], ctx.byteRange[1], ctx.byteRange[2], ctx.byteRange[3])
	if len(value) > len(byteRangePlaceholder) {
		return fmt.Errorf("byte range %s does not fit the placeholder", value)
	}
	value += strings.Repeat(" ", len(byteRangePlaceholder)-len(value))
	copy(content[ctx.byteRangeAt:], value)
	return nil
}

// signedContent returns the bytes covered by the byte range.
func (ctx *signContext) signedContent() []byte {
	content := ctx.stage.Bytes()
	r := ctx.byteRange
	signed := make([]byte, 0, r[1]+r[3])
	signed = append(signed, content[r[0]:r[0]+r[1]]...)
	signed = append(signed, content[r[2]:r[2]+r[3]]...)
	return signed
}

// replaceSignature writes the hex encoded signature into the /Contents
// placeholder. The remaining placeholder stays zero padded.
func (ctx *signContext) replaceSignature(signature []byte) error {
	dst := make([]byte, hex.EncodedLen(len(signature)))
	hex.Encode(dst, signature)

	content := ctx.stage.Bytes()
	start := ctx.contentsStart + 1
	if content[ctx.contentsStart] != '<' || start+int64(len(dst)) > ctx.byteRange[2]-1 {
		return errors.New("signature contents placeholder is damaged")
	}
	copy(content[start:], dst)
	return nil
}

// findFirstPage walks the page tree to its first leaf.
func findFirstPage(node pdf.Value, depth int) (pdf.Value, error) {
	if depth > 64 {
		return node, ErrNoPage
	}
	switch node.Key("Type").Name() {
	case "Pages":
		kids := node.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			if page, err := findFirstPage(kids.Index(i), depth+1); err == nil {
				return page, nil
			}
		}
	case "Page":
		return node, nil
	}
	return node, ErrNoPage
}

// signerName returns the common name of the signing certificate.
func signerName(cert *x509.Certificate) string {
	if cert.Subject.CommonName != "" {
		return cert.Subject.CommonName
	}
	return cert.Subject.String()
}
