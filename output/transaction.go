// Package output stages a mutated document in memory and writes it to the
// target path only when the whole operation succeeded.
package output

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/mattetti/filebuffer"

	"github.com/digitorus/pdfmu/operation"
)

// Target describes where the output document goes.
type Target struct {
	// Path of the output document. Empty means the default supplied to Open,
	// normally the input path (in-place operation).
	Path string
	// Overwrite allows replacing an existing file.
	Overwrite bool
}

// State of a transaction.
type State int

const (
	Staged State = iota
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Staged:
		return "staged"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Transaction owns the staged buffer of one run.
type Transaction struct {
	target Target
	buffer *filebuffer.Buffer
	state  State
}

// Open resolves the target and returns a transaction with an empty staged
// buffer. Nothing is written to the filesystem.
func Open(target Target, defaultPath string) (*Transaction, error) {
	if target.Path == "" {
		if defaultPath == "" {
			return nil, operation.New(operation.OutputNotSpecified, nil)
		}
		log.Println("Output file not specified. Assuming in-place operation.")
		target.Path = defaultPath
	}
	log.Printf("Output file: %s", target.Path)

	if _, err := os.Stat(target.Path); err == nil {
		log.Println("Output file already exists.")
		if !target.Overwrite {
			return nil, operation.New(operation.OutputExists, nil, operation.A("outputFile", target.Path))
		}
		log.Println("Will overwrite the output file (--force flag is set).")
	}

	return &Transaction{
		target: target,
		buffer: filebuffer.New([]byte{}),
		state:  Staged,
	}, nil
}

// Target returns the resolved target.
func (t *Transaction) Target() Target {
	return t.target
}

// Path returns the resolved output path.
func (t *Transaction) Path() string {
	return t.target.Path
}

// State returns the current state.
func (t *Transaction) State() State {
	return t.state
}

// Buffer returns the staged buffer. It must not be retained after Commit or
// Abort.
func (t *Transaction) Buffer() *filebuffer.Buffer {
	return t.buffer
}

// Write appends p to the staged buffer.
func (t *Transaction) Write(p []byte) (int, error) {
	if t.state != Staged {
		return 0, fmt.Errorf("transaction is %s", t.state)
	}
	if _, err := t.buffer.Seek(0, io.SeekEnd); err != nil {
		return 0, err
	}
	return t.buffer.Write(p)
}

// Truncate discards all staged bytes after the first n.
func (t *Transaction) Truncate(n int64) error {
	if t.state != Staged {
		return fmt.Errorf("transaction is %s", t.state)
	}
	if n < 0 || n > t.Len() {
		return fmt.Errorf("cannot truncate %d staged bytes to %d", t.Len(), n)
	}
	t.buffer.Buff.Truncate(int(n))
	return nil
}

// Len returns the number of staged bytes.
func (t *Transaction) Len() int64 {
	if t.buffer == nil {
		return 0
	}
	return int64(t.buffer.Buff.Len())
}

// Bytes returns the staged content.
func (t *Transaction) Bytes() []byte {
	if t.buffer == nil {
		return nil
	}
	return t.buffer.Buff.Bytes()
}

// Commit writes the complete staged buffer to the target path. The content is
// written to a temporary file in the target directory which then replaces the
// target, so a failure at any step leaves the target as it was.
func (t *Transaction) Commit() error {
	if t.state != Staged {
		return fmt.Errorf("cannot commit a transaction that is %s", t.state)
	}
	path := t.target.Path
	arg := operation.A("outputFile", path)

	log.Printf("Writing the output of the operation to the output file: %s", path)

	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return operation.New(operation.OutputOpen, err, arg)
	}
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	if _, err := tmp.Write(t.buffer.Buff.Bytes()); err != nil {
		discard()
		return operation.New(operation.OutputWrite, err, arg)
	}
	if err := tmp.Chmod(mode); err != nil {
		discard()
		return operation.New(operation.OutputWrite, err, arg)
	}
	if err := tmp.Sync(); err != nil {
		discard()
		return operation.New(operation.OutputClose, err, arg)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return operation.New(operation.OutputClose, err, arg)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return operation.New(operation.OutputWrite, err, arg)
	}

	t.release(Committed)
	return nil
}

// Abort discards the staged buffer. It is a no-op once the transaction was
// committed or aborted.
func (t *Transaction) Abort() {
	if t.state != Staged {
		return
	}
	t.release(Aborted)
}

// Close aborts the transaction unless it was committed.
func (t *Transaction) Close() error {
	t.Abort()
	return nil
}

func (t *Transaction) release(s State) {
	if t.buffer != nil {
		_ = t.buffer.Close()
	}
	t.buffer = nil
	t.state = s
}
