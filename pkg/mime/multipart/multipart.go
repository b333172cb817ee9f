// Package multipart models multipart/form-data bodies: an ordered list of
// parts with a named-part index, plus rendering and parsing against the
// wire format.
package multipart

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	stdmultipart "mime/multipart"
	"net/textproto"
)

// ErrNoBoundary is returned when a content type carries no boundary
// parameter.
var ErrNoBoundary = errors.New("multipart: no boundary parameter in content type")

// Part is a single body part.
type Part struct {
	headers  textproto.MIMEHeader
	name     string
	filename string
	payload  []byte
}

// NewPart creates a part with the given headers and payload. The part name
// and filename are taken from the Content-Disposition header.
func NewPart(headers textproto.MIMEHeader, payload []byte) *Part {
	p := &Part{headers: headers, payload: payload}
	if p.headers == nil {
		p.headers = textproto.MIMEHeader{}
	}
	if cd := p.headers.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			p.name = params["name"]
			p.filename = params["filename"]
		}
	}
	return p
}

// NewFormPart creates a form-data part with the given field name.
func NewFormPart(name string, payload []byte) *Part {
	headers := textproto.MIMEHeader{}
	headers.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, name))
	return NewPart(headers, payload)
}

// NewFilePart creates a form-data part carrying a file.
func NewFilePart(name, filename string, payload []byte) *Part {
	headers := textproto.MIMEHeader{}
	headers.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, name, filename))
	return NewPart(headers, payload)
}

// Name returns the part name from its Content-Disposition.
func (p *Part) Name() string { return p.name }

// Filename returns the filename from the Content-Disposition, if any.
func (p *Part) Filename() string { return p.filename }

// Headers returns the part headers.
func (p *Part) Headers() textproto.MIMEHeader { return p.headers }

// Payload returns the part payload.
func (p *Part) Payload() []byte { return p.payload }

// Multipart holds the parts of a multipart body: ordered, with named parts
// additionally indexed for lookup.
type Multipart struct {
	boundary string
	parts    []*Part
	named    map[string]*Part
}

// New creates an empty multipart with the given boundary.
func New(boundary string) *Multipart {
	return &Multipart{boundary: boundary, named: map[string]*Part{}}
}

// NewWithRandomBoundary creates an empty multipart with a generated
// boundary.
func NewWithRandomBoundary() *Multipart {
	return New(GenerateBoundary())
}

// FromContentType creates a multipart for the boundary carried in a
// Content-Type header value.
func FromContentType(contentType string) (*Multipart, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("multipart: invalid content type: %w", err)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, ErrNoBoundary
	}
	return New(boundary), nil
}

// GenerateBoundary returns a random boundary token.
func GenerateBoundary() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("multipart: boundary generation: %v", err))
	}
	return "--------------" + hex.EncodeToString(buf[:])
}

// Boundary returns the boundary token.
func (m *Multipart) Boundary() string { return m.boundary }

// ContentType returns the Content-Type header value for this body.
func (m *Multipart) ContentType() string {
	return mime.FormatMediaType("multipart/form-data", map[string]string{"boundary": m.boundary})
}

// AddPart appends a part. A named part is also indexed; the first part wins
// on a name collision.
func (m *Multipart) AddPart(p *Part) {
	m.parts = append(m.parts, p)
	if p.name != "" {
		if _, exists := m.named[p.name]; !exists {
			m.named[p.name] = p
		}
	}
}

// PartNamed returns the part with the given name, or nil.
func (m *Multipart) PartNamed(name string) *Part {
	return m.named[name]
}

// Parts returns the parts in insertion order.
func (m *Multipart) Parts() []*Part { return m.parts }

// Count returns the number of parts.
func (m *Multipart) Count() int { return len(m.parts) }

// WriteTo renders the body to w.
func (m *Multipart) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	mw := stdmultipart.NewWriter(&buf)
	if err := mw.SetBoundary(m.boundary); err != nil {
		return 0, fmt.Errorf("multipart: %w", err)
	}
	for _, p := range m.parts {
		pw, err := mw.CreatePart(p.headers)
		if err != nil {
			return 0, fmt.Errorf("multipart: %w", err)
		}
		if _, err := pw.Write(p.payload); err != nil {
			return 0, fmt.Errorf("multipart: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("multipart: %w", err)
	}
	return buf.WriteTo(w)
}

// ReadFrom parses a body with this multipart's boundary, appending the
// parsed parts.
func (m *Multipart) ReadFrom(r io.Reader) error {
	mr := stdmultipart.NewReader(r, m.boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("multipart: %w", err)
		}
		payload, err := io.ReadAll(part)
		if err != nil {
			return fmt.Errorf("multipart: %w", err)
		}
		m.AddPart(NewPart(textproto.MIMEHeader(part.Header), payload))
	}
}
