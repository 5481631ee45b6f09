// Package pdfmu mutates PDF documents: it updates the declared version,
// edits the document information dictionary and appends signatures.
//
// Every mutation runs inside a Session, which stages the new document in
// memory and writes the output file only when the whole operation
// succeeded:
//
//	s := pdfmu.NewSession()
//	res, err := pdfmu.UpdateVersion(s, "in.pdf", output.Target{Path: "out.pdf"}, version.V1_7, false, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Version)
package pdfmu

import (
	"fmt"
	"log"
	"time"

	"github.com/digitorus/pdfmu/document"
	"github.com/digitorus/pdfmu/operation"
	"github.com/digitorus/pdfmu/output"
	"github.com/digitorus/pdfmu/revision"
)

// State of a session run.
type State int

const (
	Idle State = iota
	InputOpen
	OutputStaged
	Mutated
	Committed
	Aborted
	// Unchanged means the mutation declined to run. No output was written.
	Unchanged
)

var stateNames = []string{
	Idle:         "idle",
	InputOpen:    "input-open",
	OutputStaged: "output-staged",
	Mutated:      "mutated",
	Committed:    "committed",
	Aborted:      "aborted",
	Unchanged:    "unchanged",
}

func (s State) String() string {
	if s < Idle || s > Unchanged {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Mutation is one change applied to a document.
type Mutation interface {
	Name() string
	// Prepare inspects the input before any output is staged. Returning
	// false ends the run without writing anything.
	Prepare(doc *document.Handle) (proceed bool, err error)
	// Apply appends the change to tx, which already holds a copy of the
	// input.
	Apply(doc *document.Handle, tx *output.Transaction) error
}

// Session runs mutations. A session is not safe for concurrent use; every
// run owns its input handle and transaction exclusively.
type Session struct {
	// Now is the clock used for modification dates.
	Now func() time.Time

	state State
	trace []State
}

// NewSession returns a session using the system clock.
func NewSession() *Session {
	return &Session{Now: time.Now}
}

// State returns the state the last run ended in.
func (s *Session) State() State {
	return s.state
}

// Trace returns the states of the last run in order.
func (s *Session) Trace() []State {
	return append([]State(nil), s.trace...)
}

func (s *Session) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Session) enter(state State) {
	s.state = state
	s.trace = append(s.trace, state)
}

// Run opens inputPath, applies m and commits the result to target. The
// input path is the default target. On failure the staged output is
// discarded and the input is closed before the failure is returned. A panic
// in the mutation is recovered and reported as an Unknown failure.
func (s *Session) Run(inputPath string, target output.Target, m Mutation) (err error) {
	s.state = Idle
	s.trace = []State{Idle}

	var doc *document.Handle
	var tx *output.Transaction
	defer func() {
		if r := recover(); r != nil {
			err = operation.New(operation.Unknown, fmt.Errorf("%s: panic: %v", m.Name(), r))
		}
		if err == nil {
			return
		}
		if tx != nil {
			tx.Abort()
		}
		if cerr := doc.Close(); cerr != nil {
			log.Printf("Warning: failed to close the input document: %v", cerr)
		}
		s.enter(Aborted)
	}()

	doc, err = document.Open(inputPath)
	if err != nil {
		return err
	}
	s.enter(InputOpen)

	if doc.Encrypted() {
		return operation.New(operation.InputNotValidFormat, revision.ErrEncrypted,
			operation.A("inputFile", inputPath), operation.A("reason", revision.ErrEncrypted.Error()))
	}

	proceed, err := m.Prepare(doc)
	if err != nil {
		return err
	}
	if !proceed {
		log.Printf("Nothing to do for %s.", m.Name())
		if cerr := doc.Close(); cerr != nil {
			log.Printf("Warning: failed to close the input document: %v", cerr)
		}
		s.enter(Unchanged)
		return nil
	}

	tx, err = output.Open(target, inputPath)
	if err != nil {
		return err
	}
	if err = stageInput(doc, tx); err != nil {
		return err
	}
	s.enter(OutputStaged)

	if err = m.Apply(doc, tx); err != nil {
		return err
	}
	s.enter(Mutated)

	if err = tx.Commit(); err != nil {
		return err
	}
	if cerr := doc.Close(); cerr != nil {
		log.Printf("Warning: failed to close the input document: %v", cerr)
	}
	s.enter(Committed)
	log.Printf("%s: done.", m.Name())
	return nil
}

// stageInput copies the input into tx. The file always needs an empty line
// after %%EOF before the next revision.
func stageInput(doc *document.Handle, tx *output.Transaction) error {
	if _, err := doc.CopyTo(tx); err != nil {
		return writeFailure(tx, err)
	}
	if _, err := tx.Write([]byte("\n")); err != nil {
		return writeFailure(tx, err)
	}
	return nil
}

func writeFailure(tx *output.Transaction, err error) *operation.Failure {
	return operation.New(operation.OutputWrite, err, operation.A("outputFile", tx.Path()))
}

// newRevision starts an incremental update of doc on top of the staged copy.
func newRevision(doc *document.Handle, tx *output.Transaction) (*revision.Writer, error) {
	w, err := revision.New(doc.Reader(), doc.ReaderAt(), doc.Size(), tx, tx.Len())
	if err != nil {
		return nil, operation.New(operation.InputNotValidFormat, err,
			operation.A("inputFile", doc.Path()), operation.A("reason", err.Error()))
	}
	return w, nil
}
