// Package framing splits a raw byte stream into whole JSON documents and
// encodes outbound documents for the same stream.
//
// Inbound documents are brace-delimited: the decoder finds the first '{'
// and counts brace depth until it returns to zero. Braces inside JSON
// string literals are skipped, so chat text containing '{' or '}' does
// not break framing. Outbound documents are JSON followed by CRLF, which
// line-oriented peers can read with a plain scanner.
//
// A span with an unbalanced quote would otherwise stay open forever. It
// is reported as invalid when a raw control byte (such as the CR or LF
// of a terminator) appears inside the open string, or when plain brace
// counting closes it and the next non-space byte opens another
// document. The second rule can misjudge a document that is still
// arriving and whose text holds '}' followed by '{'; senders that finish
// each document before the next avoid it.
package framing

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Terminator ends every outbound document.
const Terminator = "\r\n"

var (
	// ErrIncomplete means the buffer holds no complete document yet.
	ErrIncomplete = errors.New("framing: incomplete document")
	// ErrInvalidJSON means a brace-balanced span was not valid JSON. The
	// span has been discarded.
	ErrInvalidJSON = errors.New("framing: invalid JSON")
	// ErrFrameTooLarge means the buffer grew past its limit without
	// yielding a document. The buffer has been discarded.
	ErrFrameTooLarge = errors.New("framing: document exceeds buffer limit")
)

// Decoder accumulates bytes from one connection. It is not safe for
// concurrent use; each connection owns its own decoder.
type Decoder struct {
	buf []byte
	max int
}

// NewDecoder returns a decoder that gives up on a pending document once
// the buffer exceeds maxBuffer bytes. Zero means no limit.
func NewDecoder(maxBuffer int) *Decoder {
	return &Decoder{max: maxBuffer}
}

// Feed appends a chunk read from the connection.
func (d *Decoder) Feed(chunk []byte) {
	d.buf = append(d.buf, chunk...)
}

// Next extracts the next document. It returns ErrIncomplete when more
// data is needed, in which case the buffer is left as it was.
func (d *Decoder) Next() ([]byte, error) {
	sp, ok := scan(d.buf)
	if !ok {
		return nil, d.incomplete()
	}

	if sp.end >= 0 {
		doc := d.buf[sp.start : sp.end+1]
		if json.Valid(doc) {
			out := append([]byte(nil), doc...)
			d.consume(sp.end)
			return out, nil
		}
		cut := sp.end
		if sp.plain >= 0 && sp.plain < sp.end && followedByDocument(d.buf, sp.plain) {
			cut = sp.plain
		}
		d.consume(cut)
		return nil, ErrInvalidJSON
	}

	switch {
	case sp.ctrl >= 0:
		cut := sp.ctrl
		if sp.plain >= 0 && sp.plain < sp.ctrl {
			cut = sp.plain
		}
		d.consume(cut)
		return nil, ErrInvalidJSON
	case sp.plain >= 0 && followedByDocument(d.buf, sp.plain):
		d.consume(sp.plain)
		return nil, ErrInvalidJSON
	}
	return nil, d.incomplete()
}

func (d *Decoder) incomplete() error {
	if d.max > 0 && len(d.buf) > d.max {
		d.buf = d.buf[:0]
		return ErrFrameTooLarge
	}
	return ErrIncomplete
}

// consume drops everything up to and including index i.
func (d *Decoder) consume(i int) {
	d.buf = append(d.buf[:0], d.buf[i+1:]...)
}

// Buffered returns a copy of the bytes not yet consumed.
func (d *Decoder) Buffered() []byte {
	return append([]byte(nil), d.buf...)
}

// span describes the first candidate document in a buffer. Indexes are
// -1 when not found.
type span struct {
	start int
	// end closes the span with string literals taken into account.
	end int
	// plain closes the span by brace counting alone.
	plain int
	// ctrl is a raw control byte met inside a string literal.
	ctrl int
}

// scan locates the first '{' in buf and walks forward from it. It
// reports false when buf holds no '{' at all.
func scan(buf []byte) (span, bool) {
	start := bytes.IndexByte(buf, '{')
	if start < 0 {
		return span{}, false
	}

	sp := span{start: start, end: -1, plain: -1, ctrl: -1}
	depth, plainDepth := 1, 1
	inString, escaped := false, false
	for i := start + 1; i < len(buf); i++ {
		c := buf[i]
		if sp.plain < 0 {
			switch c {
			case '{':
				plainDepth++
			case '}':
				plainDepth--
				if plainDepth == 0 {
					sp.plain = i
				}
			}
		}

		if inString {
			switch {
			case c < 0x20:
				sp.ctrl = i
				return sp, true
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				sp.end = i
				return sp, true
			}
		}
	}
	return sp, true
}

// followedByDocument reports whether the first non-space byte after i
// opens another document.
func followedByDocument(buf []byte, i int) bool {
	rest := bytes.TrimLeft(buf[i+1:], " \t\r\n")
	return len(rest) > 0 && rest[0] == '{'
}

// Encode marshals v and appends the terminator.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, Terminator...), nil
}
