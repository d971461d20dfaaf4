package stepxml

import "io"

// Value is one attribute value. Code carries the LOV code (Value@ID) when
// the export provides one.
type Value struct {
	Text string
	Code string
}

// ClassificationRef is a reference from a product into a classification
// hierarchy, used as an alternate grouping key.
type ClassificationRef struct {
	Type string
	ID   string
}

// ProductRecord is a normalized product ("golden record") from one export.
// Records are immutable once extracted and are meant to be consumed one at
// a time, not retained in bulk.
type ProductRecord struct {
	ID              string
	ParentID        string
	UserType        string
	Name            string
	Values          map[string][]Value
	Classifications []ClassificationRef
}

// First returns the first value text for an attribute id, or "".
func (p *ProductRecord) First(attrID string) string {
	if vs := p.Values[attrID]; len(vs) > 0 {
		return vs[0].Text
	}
	return ""
}

// Texts returns all value texts for an attribute id.
func (p *ProductRecord) Texts(attrID string) []string {
	vs := p.Values[attrID]
	if len(vs) == 0 {
		return nil
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Text
	}
	return out
}

// ExtractProduct turns a Product element into a ProductRecord. It returns
// ok=false for records that must not enter the pipeline: missing ID, or a
// UserTypeID other than goldenType. Records with no UserTypeID at all are
// kept; some exports omit the tag entirely.
func ExtractProduct(el *Element, goldenType string) (*ProductRecord, bool) {
	id := CollapseSpace(el.Attr("ID"))
	if id == "" {
		return nil, false
	}
	userType := CollapseSpace(el.Attr("UserTypeID"))
	if userType != "" && goldenType != "" && userType != goldenType {
		return nil, false
	}

	rec := &ProductRecord{
		ID:       id,
		ParentID: CollapseSpace(el.Attr("ParentID")),
		UserType: userType,
		Name:     el.ChildText("Name"),
		Values:   extractValues(el),
	}
	el.EachChild("ClassificationReference", func(cr *Element) {
		cid := CollapseSpace(cr.Attr("ClassificationID"))
		if cid == "" {
			return
		}
		rec.Classifications = append(rec.Classifications, ClassificationRef{
			Type: CollapseSpace(cr.Attr("Type")),
			ID:   cid,
		})
	})
	return rec, true
}

// extractValues reads the Values container. Both encodings normalize to
// attribute id -> ordered non-empty values:
//
//	<Value AttributeID="A">text</Value>
//	<MultiValue AttributeID="A"><Value>t1</Value><Value>t2</Value></MultiValue>
//
// Whitespace-only values are dropped, never stored as empty strings.
func extractValues(el *Element) map[string][]Value {
	values := el.Child("Values")
	if values == nil {
		return nil
	}
	out := make(map[string][]Value)
	for _, ch := range values.Children {
		attrID := CollapseSpace(ch.Attr("AttributeID"))
		if attrID == "" {
			continue
		}
		switch ch.Tag {
		case "Value":
			if v, ok := singleValue(ch); ok {
				out[attrID] = append(out[attrID], v)
			}
		case "MultiValue":
			ch.EachChild("Value", func(sv *Element) {
				if v, ok := singleValue(sv); ok {
					out[attrID] = append(out[attrID], v)
				}
			})
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func singleValue(el *Element) (Value, bool) {
	text := el.Text()
	if text == "" {
		return Value{}, false
	}
	return Value{Text: text, Code: CollapseSpace(el.Attr("ID"))}, true
}

// ProductReader streams qualifying ProductRecords from one export file.
type ProductReader struct {
	r          *Reader
	goldenType string
}

// NewProductReader wraps r; records whose UserTypeID differs from
// goldenType are skipped without error.
func NewProductReader(r io.Reader, goldenType string) *ProductReader {
	return &ProductReader{r: NewReader(r, "Product"), goldenType: goldenType}
}

// Next returns the next golden record, or io.EOF.
func (pr *ProductReader) Next() (*ProductRecord, error) {
	for {
		el, err := pr.r.Next()
		if err != nil {
			return nil, err
		}
		if rec, ok := ExtractProduct(el, pr.goldenType); ok {
			return rec, nil
		}
	}
}

// Skipped reports dropped malformed fragments from the underlying reader.
func (pr *ProductReader) Skipped() int { return pr.r.Skipped() }
