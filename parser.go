package flowstore

import (
	"bufio"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

type parser struct {
	totalSize     int
	cmdSize       int
	totalCommands int
	currentLine   int
}

// parse replays commands from r, handing every entry to cb.
// It returns the number of bytes that belong to complete commands.
func (p *parser) parse(r *bufio.Reader, cb func(ent *entry) error) (int, error) {
	for {
		p.cmdSize = 0

		if _, err := r.Peek(1); err != nil {
			if err == io.EOF {
				return p.totalSize, nil
			}

			return p.totalSize, errors.Wrap(ErrSourceFileReadFailed, err.Error())
		}

		segments, err := p.resolveRespArray(r)
		if err != nil {
			return p.totalSize, err
		}

		cmd, err := p.resolveRespSimpleString(r)
		if err != nil {
			return p.totalSize, err
		}

		switch cmd {
		case setCommand:
			if segments != 3 {
				return p.totalSize, errors.Wrapf(
					ErrCommandInvalid,
					"line #%d - set command expects 3 segments, got %d", p.currentLine, segments,
				)
			}

			if err := p.parseSetCommand(r, cb); err != nil {
				return p.totalSize, err
			}
		default:
			return p.totalSize, errors.Wrapf(ErrCommandInvalid, "line #%d - unknown command %s", p.currentLine, cmd)
		}

		p.totalCommands++
		p.totalSize += p.cmdSize
	}
}

// parseSetCommand - parses `set` command from serialization protocol
func (p *parser) parseSetCommand(r *bufio.Reader, cb func(ent *entry) error) error {
	key, _, err := p.resolveRespBlob(r)
	if err != nil {
		return err
	}

	value, offset, err := p.resolveRespBlob(r)
	if err != nil {
		return err
	}

	ent := newEntry(string(key), value)
	ent.pos = position{offset: uint64(offset), size: uint64(len(value))}

	return cb(ent)
}

func (p *parser) resolveRespArray(r *bufio.Reader) (int, error) {
	line, err := p.readLine(r)
	if err != nil {
		return 0, err
	}

	if len(line) < 2 || line[0] != '*' {
		return 0, errors.Wrapf(ErrCommandInvalid, "line #%d - %q is not an array header", p.currentLine, line)
	}

	segments, err := strconv.Atoi(string(line[1:]))
	if err != nil || segments < 1 {
		return 0, errors.Wrapf(ErrCommandInvalid, "line #%d - invalid array size %q", p.currentLine, line[1:])
	}

	return segments, nil
}

func (p *parser) resolveRespSimpleString(r *bufio.Reader) (string, error) {
	line, err := p.readLine(r)
	if err != nil {
		return "", err
	}

	if len(line) < 2 || line[0] != '+' {
		return "", errors.Wrapf(ErrCommandInvalid, "line #%d - %q is not a simple string", p.currentLine, line)
	}

	return string(line[1:]), nil
}

// resolveRespBlob reads a length prefixed blob and returns it together
// with the absolute offset its first byte was found at.
func (p *parser) resolveRespBlob(r *bufio.Reader) ([]byte, int, error) {
	line, err := p.readLine(r)
	if err != nil {
		return nil, 0, err
	}

	if len(line) < 2 || line[0] != '$' {
		return nil, 0, errors.Wrapf(ErrCommandInvalid, "line #%d - %q is not a blob header", p.currentLine, line)
	}

	n, err := strconv.Atoi(string(line[1:]))
	if err != nil || n < 0 {
		return nil, 0, errors.Wrapf(ErrCommandInvalid, "line #%d - invalid blob size %q", p.currentLine, line[1:])
	}

	offset := p.totalSize + p.cmdSize

	blob := make([]byte, n+2)
	if _, err := io.ReadFull(r, blob); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, io.ErrUnexpectedEOF
		}

		return nil, 0, errors.Wrap(ErrSourceFileReadFailed, err.Error())
	}

	if blob[n] != '\r' || blob[n+1] != '\n' {
		return nil, 0, errors.Wrapf(ErrCommandInvalid, "line #%d - blob is not terminated", p.currentLine)
	}

	p.currentLine++
	p.cmdSize += n + 2

	return blob[:n], offset, nil
}

// readLine returns the line without the trailing \r\n
func (p *parser) readLine(r *bufio.Reader) ([]byte, error) {
	p.currentLine++
	line, err := r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}

		return nil, errors.Wrap(ErrSourceFileReadFailed, err.Error())
	}

	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, errors.Wrapf(ErrCommandInvalid, "line #%d - %q is not terminated with CRLF", p.currentLine, line)
	}

	p.cmdSize += len(line)
	return line[:len(line)-2], nil
}
