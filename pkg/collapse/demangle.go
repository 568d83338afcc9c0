package collapse

import (
	"encoding/xml"
	"io"

	"github.com/ianlancetaylor/demangle"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

// DemangleXML copies an xctrace export from r to w, rewriting the name
// attribute of every <frame> through the C++ and Rust demangler. Every other
// token passes through unchanged and text is re-escaped on the way out.
func DemangleXML(r io.Reader, w io.Writer) error {
	dec := xml.NewDecoder(r)
	enc := xml.NewEncoder(w)

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errdefs.Wrap(errdefs.ErrParse, err, "cannot parse xctrace export for demangling")
		}

		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "frame" {
			se = se.Copy()
			for i, a := range se.Attr {
				if a.Name.Local == "name" {
					se.Attr[i].Value = demangle.Filter(a.Value)
				}
			}
			tok = se
		}

		if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return errdefs.Wrap(errdefs.ErrParse, err, "cannot re-encode demangled xctrace export")
		}
	}

	if err := enc.Flush(); err != nil {
		return errdefs.Wrap(errdefs.ErrIO, err, "cannot write demangled xctrace export")
	}
	return nil
}
