// Package pdfstruct is the bridge between a read-only PDF object graph
// (github.com/digitorus/pdf) and an append-only incremental revision writer.
// It provides exactly the primitives the rest of this module needs: lookup
// via the underlying reader, registration of brand-new objects, marking
// objects for inclusion in the next xref section, and emission of the
// incremental bytes that get appended to the original file.
package pdfstruct

import (
	"bytes"
	"fmt"

	pdflib "github.com/digitorus/pdf"
)

// object is a single new or updated indirect object awaiting the next save.
type object struct {
	num  uint32
	gen  uint32
	body []byte // everything between "N G obj" and "endobj", exclusive
	free bool   // true for the xref's implicit free-list head (object 0)
}

// Context tracks one incremental revision in progress. It never mutates
// OriginalBytes; Finish returns a fresh byte slice equal to
// OriginalBytes plus the new revision.
type Context struct {
	OriginalBytes []byte

	RootNum uint32
	RootGen uint32

	prevStartXref int64
	xrefKind      XrefKind
	baseSize      uint32

	nextNum uint32
	objects []*object
	marked  map[uint32]bool
}

// Open loads the object counter, root reference, xref style, and previous
// xref offset from an existing PDF byte image so a new revision can be
// appended consistently with whatever came before it.
func Open(data []byte) (*Context, error) {
	prevOff, ok := LastStartXref(data)
	if !ok {
		return nil, fmt.Errorf("pdfstruct: no startxref found")
	}

	rootNum, rootGen, ok := FindRoot(data)
	if !ok {
		return nil, fmt.Errorf("pdfstruct: no /Root entry found")
	}

	size, _ := FindSize(data)
	counter := LiftObjectCounter(data)
	next := counter + 1
	if size > next {
		next = size
	}

	return &Context{
		OriginalBytes: data,
		RootNum:       rootNum,
		RootGen:       rootGen,
		prevStartXref: prevOff,
		xrefKind:      DetectXrefKind(data, prevOff),
		baseSize:      next,
		nextNum:       next,
		marked:        make(map[uint32]bool),
	}, nil
}

// OpenWithReader behaves like Open but additionally validates the byte image
// parses as a PDF via the reference reader, surfacing parse errors early.
func OpenWithReader(data []byte) (*Context, error) {
	if _, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, fmt.Errorf("pdfstruct: %w", err)
	}
	return Open(data)
}

// NewObjectNum reserves and returns the next free object number without
// registering a body yet; useful when an object's own body must reference
// an object number assigned after it (e.g. a Widget referencing its page).
func (c *Context) NewObjectNum() uint32 {
	n := c.nextNum
	c.nextNum++
	return n
}

// RegisterObject assigns the next object number, stores body as that
// object's content, marks it for save, and returns the assigned number.
func (c *Context) RegisterObject(body []byte) uint32 {
	num := c.NewObjectNum()
	c.objects = append(c.objects, &object{num: num, gen: 0, body: body})
	c.marked[num] = true
	return num
}

// UpdateObject overwrites (or creates) the body for an existing object
// number — used when a previously-allocated object (for example the
// catalog, whose number never changes across revisions) needs new content
// in this revision.
func (c *Context) UpdateObject(num uint32, body []byte) {
	for _, o := range c.objects {
		if o.num == num {
			o.body = body
			c.marked[num] = true
			return
		}
	}
	c.objects = append(c.objects, &object{num: num, gen: 0, body: body})
	c.marked[num] = true
}

// MarkForSave records that an already-registered object number must appear
// in this revision's xref section even if its body did not change.
// RegisterObject/UpdateObject mark implicitly; this exists for objects
// that are referenced-but-unmodified, such as a page kept alive by a new
// Annots entry written through a separate UpdateObject call.
func (c *Context) MarkForSave(num uint32) {
	c.marked[num] = true
}

// Size returns one past the highest object number this context knows about.
func (c *Context) Size() uint32 {
	return c.nextNum
}
