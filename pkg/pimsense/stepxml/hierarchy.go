package stepxml

import (
	"io"
	"strconv"
)

// AttributeLink is a declared attribute requirement on a hierarchy node.
type AttributeLink struct {
	AttributeID            string
	Mandatory              *bool
	DisplaySequence        *int
	MandatoryForSubmit     string // e.g. "Yes" / "No"
	MandatoryForSubmitCode string // e.g. "Y" / "N"
}

// Node is one hierarchy export record (a non-leaf "Product" in the PPH
// file). Values holds the first text per attribute id; hierarchy label
// attributes are resolved from it downstream.
type Node struct {
	ID       string
	ParentID string
	UserType string
	Name     string
	Values   map[string]string
	Links    []AttributeLink
}

// ExtractNode turns a hierarchy element into a Node. Nodes without an ID
// are rejected.
func ExtractNode(el *Element) (*Node, bool) {
	id := CollapseSpace(el.Attr("ID"))
	if id == "" {
		return nil, false
	}
	n := &Node{
		ID:       id,
		ParentID: CollapseSpace(el.Attr("ParentID")),
		UserType: CollapseSpace(el.Attr("UserTypeID")),
		Name:     el.ChildText("Name"),
	}
	for attrID, vs := range extractValues(el) {
		if n.Values == nil {
			n.Values = make(map[string]string)
		}
		n.Values[attrID] = vs[0].Text
	}
	el.EachChild("AttributeLink", func(al *Element) {
		link, ok := extractLink(al)
		if ok {
			n.Links = append(n.Links, link)
		}
	})
	return n, true
}

func extractLink(el *Element) (AttributeLink, bool) {
	attrID := CollapseSpace(el.Attr("AttributeID"))
	if attrID == "" {
		return AttributeLink{}, false
	}
	link := AttributeLink{
		AttributeID: attrID,
		Mandatory:   parseBool(el.Attr("Mandatory")),
	}
	if md := el.Child("MetaData"); md != nil {
		md.EachChild("Value", func(v *Element) {
			switch CollapseSpace(v.Attr("AttributeID")) {
			case "PMDM.AT.DisplaySequence":
				if seq, err := strconv.Atoi(v.Text()); err == nil {
					link.DisplaySequence = &seq
				}
			case "PMDM.AT.PDS.MandatoryForSubmit":
				link.MandatoryForSubmit = v.Text()
				link.MandatoryForSubmitCode = CollapseSpace(v.Attr("ID"))
			}
		})
	}
	return link, true
}

func parseBool(s string) *bool {
	var v bool
	switch CollapseSpace(s) {
	case "true", "1", "yes", "y", "True", "Yes", "Y":
		v = true
	case "false", "0", "no", "n", "False", "No", "N":
		v = false
	default:
		return nil
	}
	return &v
}

// NodeReader streams hierarchy Nodes from one export file.
type NodeReader struct {
	r *Reader
}

// NewNodeReader wraps r for hierarchy exports.
func NewNodeReader(r io.Reader) *NodeReader {
	return &NodeReader{r: NewReader(r, "Product")}
}

// Next returns the next node, or io.EOF.
func (nr *NodeReader) Next() (*Node, error) {
	for {
		el, err := nr.r.Next()
		if err != nil {
			return nil, err
		}
		if n, ok := ExtractNode(el); ok {
			return n, nil
		}
	}
}

// Skipped reports dropped malformed fragments from the underlying reader.
func (nr *NodeReader) Skipped() int { return nr.r.Skipped() }
