package pdfstruct

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"

	"github.com/mattetti/filebuffer"
)

type xrefEntry struct {
	num    uint32
	offset int64
}

// Finish serializes every registered/updated object plus a new xref section
// chained via /Prev to the previous revision, and returns OriginalBytes with
// the new revision appended. extraTrailer carries additional trailer/xref
// dict entries the caller wants present (e.g. "/Info 3 0 R"); /Size, /Root
// and /Prev are always supplied by Finish itself.
func (c *Context) Finish(extraTrailer map[string]string) ([]byte, error) {
	body := filebuffer.New(nil)
	if _, err := body.Write(c.OriginalBytes); err != nil {
		return nil, err
	}
	if len(c.OriginalBytes) == 0 || c.OriginalBytes[len(c.OriginalBytes)-1] != '\n' {
		if _, err := body.Write([]byte{'\n'}); err != nil {
			return nil, err
		}
	}

	sort.Slice(c.objects, func(i, j int) bool { return c.objects[i].num < c.objects[j].num })

	entries := make([]xrefEntry, 0, len(c.objects))
	for _, o := range c.objects {
		offset := int64(body.Buff.Len())
		fmt.Fprintf(body, "%d %d obj\n", o.num, o.gen)
		body.Write(o.body)
		if len(o.body) == 0 || o.body[len(o.body)-1] != '\n' {
			body.Write([]byte{'\n'})
		}
		body.Write([]byte("endobj\n"))
		entries = append(entries, xrefEntry{num: o.num, offset: offset})
	}

	switch c.xrefKind {
	case XrefStream:
		return c.finishStream(body, entries, extraTrailer)
	default:
		return c.finishTable(body, entries, extraTrailer)
	}
}

// contiguousRuns groups sorted, unique object numbers into [start,count) runs.
func contiguousRuns(entries []xrefEntry) [][2]uint32 {
	if len(entries) == 0 {
		return nil
	}
	var runs [][2]uint32
	start := entries[0].num
	count := uint32(1)
	for i := 1; i < len(entries); i++ {
		if entries[i].num == entries[i-1].num+1 {
			count++
			continue
		}
		runs = append(runs, [2]uint32{start, count})
		start = entries[i].num
		count = 1
	}
	runs = append(runs, [2]uint32{start, count})
	return runs
}

func (c *Context) finishTable(body *filebuffer.Buffer, entries []xrefEntry, extraTrailer map[string]string) ([]byte, error) {
	xrefStart := int64(body.Buff.Len())

	body.Write([]byte("xref\n"))
	for _, run := range contiguousRuns(entries) {
		fmt.Fprintf(body, "%d %d\n", run[0], run[1])
		for i := uint32(0); i < run[1]; i++ {
			num := run[0] + i
			off := int64(0)
			for _, e := range entries {
				if e.num == num {
					off = e.offset
					break
				}
			}
			fmt.Fprintf(body, "%010d %05d n \n", off, 0)
		}
	}

	size := c.Size()
	body.Write([]byte("trailer\n<<"))
	fmt.Fprintf(body, " /Size %d /Root %d %d R /Prev %d", size, c.RootNum, c.RootGen, c.prevStartXref)
	for k, v := range extraTrailer {
		fmt.Fprintf(body, " /%s %s", k, v)
	}
	body.Write([]byte(" >>\n"))
	fmt.Fprintf(body, "startxref\n%d\n%%%%EOF\n", xrefStart)

	return body.Buff.Bytes(), nil
}

func (c *Context) finishStream(body *filebuffer.Buffer, entries []xrefEntry, extraTrailer map[string]string) ([]byte, error) {
	// The xref stream object describes itself, so reserve its number first.
	xrefObjNum := c.NewObjectNum()
	entries = append(entries, xrefEntry{num: xrefObjNum, offset: 0}) // offset patched below
	sort.Slice(entries, func(i, j int) bool { return entries[i].num < entries[j].num })

	xrefObjOffset := int64(body.Buff.Len())
	for i := range entries {
		if entries[i].num == xrefObjNum {
			entries[i].offset = xrefObjOffset
		}
	}

	var raw bytes.Buffer
	runs := contiguousRuns(entries)
	var indexParts []string
	for _, run := range runs {
		indexParts = append(indexParts, fmt.Sprintf("%d %d", run[0], run[1]))
		for i := uint32(0); i < run[1]; i++ {
			num := run[0] + i
			var off int64
			for _, e := range entries {
				if e.num == num {
					off = e.offset
					break
				}
			}
			raw.WriteByte(1) // type 1: in-use object
			var offBuf [4]byte
			offBuf[0] = byte(off >> 24)
			offBuf[1] = byte(off >> 16)
			offBuf[2] = byte(off >> 8)
			offBuf[3] = byte(off)
			raw.Write(offBuf[:])
			raw.WriteByte(0) // generation 0
		}
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("pdfstruct: compress xref stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("pdfstruct: compress xref stream: %w", err)
	}

	size := c.Size()
	indexStr := ""
	for i, p := range indexParts {
		if i > 0 {
			indexStr += " "
		}
		indexStr += p
	}

	fmt.Fprintf(body, "%d 0 obj\n<< /Type /XRef /W [1 4 1] /Index [%s] /Size %d /Root %d %d R /Prev %d /Filter /FlateDecode /Length %d",
		xrefObjNum, indexStr, size, c.RootNum, c.RootGen, c.prevStartXref, compressed.Len())
	for k, v := range extraTrailer {
		fmt.Fprintf(body, " /%s %s", k, v)
	}
	body.Write([]byte(" >>\nstream\n"))
	body.Write(compressed.Bytes())
	body.Write([]byte("\nendstream\nendobj\n"))

	fmt.Fprintf(body, "startxref\n%d\n%%%%EOF\n", xrefObjOffset)

	return body.Buff.Bytes(), nil
}
