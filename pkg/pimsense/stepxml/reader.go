// Package stepxml reads STEP-style PIM/MDM interchange exports in a
// streaming fashion. Exports can hold hundreds of thousands of nested
// records; the reader materializes one target element subtree at a time
// so memory stays independent of file size.
package stepxml

import (
	"encoding/xml"
	"io"
	"strings"
)

// Element is a lightweight view of one XML element subtree. Namespace
// prefixes are discarded; the exports are matched on local names only.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Children []*Element

	text strings.Builder
}

// Attr returns the named attribute, or "" when absent.
func (e *Element) Attr(name string) string {
	return e.Attrs[name]
}

// Text returns the element's direct character data with whitespace collapsed.
func (e *Element) Text() string {
	return CollapseSpace(e.text.String())
}

// Child returns the first direct child with the given local tag, or nil.
func (e *Element) Child(tag string) *Element {
	for _, ch := range e.Children {
		if ch.Tag == tag {
			return ch
		}
	}
	return nil
}

// ChildText returns the collapsed text of the first matching child, or "".
func (e *Element) ChildText(tag string) string {
	if ch := e.Child(tag); ch != nil {
		return ch.Text()
	}
	return ""
}

// EachChild calls fn for every direct child with the given local tag.
func (e *Element) EachChild(tag string, fn func(*Element)) {
	for _, ch := range e.Children {
		if ch.Tag == tag {
			fn(ch)
		}
	}
}

// CollapseSpace trims and collapses runs of whitespace to single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Reader yields elements matching one local tag name, in document order.
// Each call to NewReader starts an independent forward-only scan.
//
// Contract: the caller must finish with a yielded Element before calling
// Next again. The reader holds no reference to yielded elements, so each
// subtree is reclaimable as soon as the caller drops it; nothing outside
// the current target subtree is ever materialized.
type Reader struct {
	dec     *xml.Decoder
	tag     string
	skipped int
	done    bool
}

// NewReader builds a permissive streaming reader over r for elements whose
// local name equals tag. Catalog exports are occasionally malformed (stray
// encoding bytes, unterminated entities), so the decoder runs non-strict
// with HTML entities and a charset passthrough.
func NewReader(r io.Reader, tag string) *Reader {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return &Reader{dec: dec, tag: tag}
}

// Skipped reports how many fragments were dropped due to parse errors.
func (r *Reader) Skipped() int { return r.skipped }

// Next returns the next matching element, or io.EOF when the document is
// exhausted. A parse error inside a target subtree drops that fragment and
// the scan continues; a parse error that repeats without the decoder making
// progress ends the scan.
func (r *Reader) Next() (*Element, error) {
	if r.done {
		return nil, io.EOF
	}
	var lastOffset int64 = -1
	for {
		tok, err := r.dec.Token()
		if err == io.EOF {
			r.done = true
			return nil, io.EOF
		}
		if err != nil {
			off := r.dec.InputOffset()
			if off == lastOffset {
				// Decoder is stuck; treat the rest of the file as lost.
				r.done = true
				return nil, io.EOF
			}
			lastOffset = off
			r.skipped++
			continue
		}
		start, ok := tok.(xml.StartElement)
		if !ok || localName(start.Name) != r.tag {
			continue
		}
		el, err := r.capture(start)
		if err == io.EOF {
			r.done = true
			return nil, io.EOF
		}
		if err != nil {
			r.skipped++
			continue
		}
		return el, nil
	}
}

// capture materializes the subtree rooted at start.
func (r *Reader) capture(start xml.StartElement) (*Element, error) {
	root := newElement(start)
	stack := []*Element{root}
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := newElement(t)
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, el)
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return root, nil
			}
		case xml.CharData:
			cur := stack[len(stack)-1]
			cur.text.Write(t)
		}
	}
}

func newElement(start xml.StartElement) *Element {
	el := &Element{Tag: localName(start.Name)}
	if len(start.Attr) > 0 {
		el.Attrs = make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			el.Attrs[localName(a.Name)] = a.Value
		}
	}
	return el
}

func localName(n xml.Name) string {
	if i := strings.LastIndexByte(n.Local, ':'); i >= 0 {
		return n.Local[i+1:]
	}
	return n.Local
}
