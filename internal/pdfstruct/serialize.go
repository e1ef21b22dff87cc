package pdfstruct

import (
	"fmt"
	"io"

	pdflib "github.com/digitorus/pdf"
)

// SerializeValue writes value in PDF syntax, recursing through dicts and
// arrays. Indirect references to objects other than currentObjID are
// preserved as "N G R" rather than expanded, which is what lets a rewritten
// catalog keep pointing at /Pages, /Names, and everything else it never
// needed to touch. Streams cannot appear as direct (non-referenced) values
// inside another object, so encountering one here is a logic error in the
// caller, not recoverable input.
func SerializeValue(w io.Writer, currentObjID uint32, value pdflib.Value) error {
	if ptr := value.GetPtr(); ptr.GetID() != 0 && ptr.GetID() != currentObjID {
		_, err := fmt.Fprintf(w, "%d %d R", ptr.GetID(), ptr.GetGen())
		return err
	}

	switch value.Kind() {
	case pdflib.Null:
		_, err := io.WriteString(w, "null")
		return err
	case pdflib.Bool:
		if value.Bool() {
			_, err := io.WriteString(w, "true")
			return err
		}
		_, err := io.WriteString(w, "false")
		return err
	case pdflib.Integer:
		_, err := fmt.Fprintf(w, "%d", value.Int64())
		return err
	case pdflib.Real:
		_, err := fmt.Fprintf(w, "%f", value.Float64())
		return err
	case pdflib.String:
		_, err := fmt.Fprintf(w, "(%s)", escapeLiteralString(value.RawString()))
		return err
	case pdflib.Name:
		_, err := fmt.Fprintf(w, "/%s", value.Name())
		return err
	case pdflib.Dict:
		if err := writeByte(w, '<', '<'); err != nil {
			return err
		}
		for _, k := range value.Keys() {
			if _, err := fmt.Fprintf(w, "/%s ", k); err != nil {
				return err
			}
			if err := SerializeValue(w, currentObjID, value.Key(k)); err != nil {
				return err
			}
			if _, err := io.WriteString(w, " "); err != nil {
				return err
			}
		}
		return writeByte(w, '>', '>')
	case pdflib.Array:
		if _, err := io.WriteString(w, "["); err != nil {
			return err
		}
		for i := 0; i < value.Len(); i++ {
			if i > 0 {
				if _, err := io.WriteString(w, " "); err != nil {
					return err
				}
			}
			if err := SerializeValue(w, currentObjID, value.Index(i)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "]")
		return err
	case pdflib.Stream:
		panic("pdfstruct: stream cannot be a direct object")
	default:
		_, err := io.WriteString(w, "null")
		return err
	}
}

func writeByte(w io.Writer, a, b byte) error {
	_, err := w.Write([]byte{a, b})
	return err
}

func escapeLiteralString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', ')', '\\':
			out = append(out, '\\', s[i])
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
