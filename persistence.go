package flowstore

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

var ErrDbFileWriteFailed = errors.New("database write failed")
var ErrSourceFileReadFailed = errors.New("source file read failed")
var ErrCommandInvalid = errors.New("command invalid")
var ErrStorageFailed = errors.New("storage error")

const defaultFilePerm = 0666

type persistence struct {
	mu       sync.RWMutex
	strategy PersistenceStrategy
	f        *os.File
	flushes  int
	cursor   int
}

func newPersistence(
	filepath string,
	strategy PersistenceStrategy,
	truncateFileOnOpen bool,
) (*persistence, error) {
	flags := os.O_CREATE | os.O_RDWR
	if truncateFileOnOpen {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(filepath, flags, defaultFilePerm)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open database file %s", filepath)
	}

	return &persistence{f: f, strategy: strategy}, nil
}

func (p *persistence) close() error {
	p.mu.Lock()
	defer func() {
		p.f = nil
		p.mu.Unlock()
	}()

	if err := p.f.Sync(); err != nil {
		_ = p.f.Close()
		return errors.Wrapf(err, "could not sync file %s", p.f.Name())
	}

	if err := p.f.Close(); err != nil {
		return errors.Wrap(err, "could not close file")
	}

	return nil
}

// load replays the file. A torn command at the end of the file
// is cut off, everything before it is kept.
func (p *persistence) load(cb func(ent *entry) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrapf(ErrStorageFailed, "could not rewind file %s: %s", p.f.Name(), err.Error())
	}

	prs := &parser{}
	r := bufio.NewReader(p.f)

	n, err := prs.parse(r, cb)
	if err != nil {
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			return err
		}

		if tErr := p.f.Truncate(int64(n)); tErr != nil {
			return errors.Wrapf(tErr, "could not truncate file %s after parse error", p.f.Name())
		}
	}

	p.cursor = n

	return nil
}

func (p *persistence) offset() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cursor
}

func (p *persistence) write(rs *respSerializer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.f.WriteAt(rs.buf.Bytes(), int64(p.cursor))
	if err != nil {
		if n > 0 {
			// partial write occurred, must rollback the file
			if tErr := p.f.Truncate(int64(p.cursor)); tErr != nil {
				return errors.Wrapf(tErr, "could not truncate file %s after partial write", p.f.Name())
			}
		}

		_ = p.f.Sync()
		return errors.Wrap(ErrDbFileWriteFailed, err.Error())
	}

	if p.strategy == Sync {
		if err := p.f.Sync(); err != nil {
			return errors.Wrapf(ErrDbFileWriteFailed, "could not sync file %s: %s", p.f.Name(), err.Error())
		}
	}

	p.flushes++
	p.cursor += n
	return nil
}

func (p *persistence) sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.f.Sync(); err != nil {
		return errors.Wrapf(err, "cannot sync file %s", p.f.Name())
	}
	return nil
}

func (p *persistence) readAt(pos position) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	blob := make([]byte, pos.size)
	if _, err := p.f.ReadAt(blob, int64(pos.offset)); err != nil {
		return nil, errors.Wrapf(
			ErrStorageFailed,
			"could not read blob at offset %d in file %s: %s",
			pos.offset, p.f.Name(), err.Error(),
		)
	}

	return blob, nil
}

// writeAndSwap writes the serialized contents into a temporary file
// and replaces the database file with it.
func (p *persistence) writeAndSwap(rs *respSerializer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tmpFName := p.f.Name() + ".tmp"
	tmpF, err := os.Create(tmpFName)
	if err != nil {
		return errors.Wrapf(err, "could not create %s file for vacuum", tmpFName)
	}

	defer func() {
		_ = tmpF.Close()
		_ = os.RemoveAll(tmpFName)
	}()

	expectedLen := rs.buf.Len()
	n, err := tmpF.Write(rs.buf.Bytes())
	if err != nil {
		return errors.Wrapf(err, "vacuum could not write into %s file", tmpFName)
	}

	if n != expectedLen {
		return errors.Wrapf(ErrDbFileWriteFailed, "vacuum wrote %d of %d bytes into %s file", n, expectedLen, tmpFName)
	}

	if err := tmpF.Sync(); err != nil {
		return errors.Wrapf(err, "vacuum could not sync %s file", tmpFName)
	}

	oldName := p.f.Name()
	if err := p.f.Close(); err != nil {
		return errors.Wrapf(err, "vacuum could not close %s file to swap it", oldName)
	}

	if rnErr := os.Rename(tmpFName, oldName); rnErr != nil {
		resultErr := errors.Wrapf(rnErr, "vacuum could not swap %s file for %s", oldName, tmpFName)
		p.f, err = os.OpenFile(oldName, os.O_CREATE|os.O_RDWR, defaultFilePerm)
		if err != nil {
			return errors.Wrapf(resultErr, "and could not reopen old file: %s", err.Error())
		}
		return resultErr
	}

	p.f, err = os.OpenFile(oldName, os.O_CREATE|os.O_RDWR, defaultFilePerm)
	if err != nil {
		return errors.Wrapf(err, "could not reopen swapped file: %s", oldName)
	}

	p.cursor = n

	return nil
}
