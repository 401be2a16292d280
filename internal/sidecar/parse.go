package sidecar

import (
	"encoding/xml"
	"io"
	"strings"
)

const rdfNS = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

// nsPrefixes maps well-known XMP namespace URLs to the short prefixes the
// extraction tool uses in its per-group output. The no-trailing-slash
// variant of the xmp namespace shows up in attribute form.
var nsPrefixes = map[string]string{
	rdfNS:                                            "rdf",
	"http://purl.org/dc/elements/1.1/":               "dc",
	"http://ns.adobe.com/xap/1.0/":                   "xmp",
	"http://ns.adobe.com/xap/1.0":                    "xmp",
	"http://ns.adobe.com/xap/1.0/rights/":            "xmpRights",
	"http://ns.adobe.com/xap/1.0/mm/":                "xmpMM",
	"http://ns.adobe.com/exif/1.0/":                  "exif",
	"http://ns.adobe.com/tiff/1.0/":                  "tiff",
	"http://ns.adobe.com/photoshop/1.0/":             "photoshop",
	"http://iptc.org/std/Iptc4xmpCore/1.0/xmlns/":    "Iptc4xmpCore",
	"http://ns.adobe.com/lightroom/1.0/":             "lr",
	"http://ns.adobe.com/camera-raw-settings/1.0/":   "crs",
	"http://ns.adobe.com/xap/1.0/bj/":                "xmpBJ",
	"http://ns.adobe.com/xap/1.0/t/pg/":              "xmpTPg",
	"http://ns.adobe.com/xap/1.0/g/img/":             "xmpGImg",
	"http://ns.adobe.com/xmp/1.0/DynamicMedia/":      "xmpDM",
	"http://iptc.org/std/Iptc4xmpExt/2008-02-29/":    "Iptc4xmpExt",
	"http://ns.useplus.org/ldf/xmp/1.0/":             "plus",
	"http://ns.adobe.com/exif/1.0/aux/":              "aux",
	"http://purl.org/dc/terms/":                      "dcterms",
}

// nsToPrefix maps a namespace URL to a short prefix, deriving one from the
// last meaningful URL segment when the namespace is unknown.
func nsToPrefix(ns string) string {
	if p, ok := nsPrefixes[ns]; ok {
		return p
	}
	stripped := strings.TrimRight(strings.TrimRight(ns, "/"), "#")
	parts := strings.Split(stripped, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		part := strings.TrimSpace(parts[i])
		if part != "" && !strings.HasPrefix(part, "http") && len(part) <= 30 {
			return part
		}
	}
	return "xmp"
}

// node is a generic XML element tree; encoding/xml fills it recursively.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []node     `xml:",any"`
}

func (n *node) child(ns, local string) *node {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Space == ns && n.Nodes[i].XMLName.Local == local {
			return &n.Nodes[i]
		}
	}
	return nil
}

// extractValue flattens an XMP property element to a string: rdf:Alt/Seq/Bag
// items joined with "; ", then direct text, then a nested rdf:Description
// rendered as key=value pairs. Returns "" when nothing usable is present.
func extractValue(n *node) string {
	for _, container := range []string{"Alt", "Seq", "Bag"} {
		c := n.child(rdfNS, container)
		if c == nil {
			continue
		}
		var texts []string
		for i := range c.Nodes {
			li := &c.Nodes[i]
			if li.XMLName.Space != rdfNS || li.XMLName.Local != "li" {
				continue
			}
			if t := strings.TrimSpace(li.Text); t != "" {
				texts = append(texts, t)
			}
		}
		return strings.Join(texts, "; ")
	}

	if t := strings.TrimSpace(n.Text); t != "" {
		return t
	}

	if desc := n.child(rdfNS, "Description"); desc != nil {
		var parts []string
		for _, a := range desc.Attrs {
			if a.Name.Space == "" || a.Name.Local == "about" {
				continue
			}
			if v := strings.TrimSpace(a.Value); v != "" {
				parts = append(parts, a.Name.Local+"="+v)
			}
		}
		return strings.Join(parts, "; ")
	}

	return ""
}

// Parse reads an XMP document and returns every property found on its
// rdf:Description nodes, in both attribute and child-element form.
func Parse(r io.Reader) ([]Tag, error) {
	var root node
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}

	var tags []Tag
	walkDescriptions(&root, &tags)
	return tags, nil
}

func walkDescriptions(n *node, tags *[]Tag) {
	if n.XMLName.Space == rdfNS && n.XMLName.Local == "Description" {
		collectDescription(n, tags)
	}
	for i := range n.Nodes {
		walkDescriptions(&n.Nodes[i], tags)
	}
}

func collectDescription(desc *node, tags *[]Tag) {
	// inline attribute form, e.g. exif:FNumber="28/10"
	for _, a := range desc.Attrs {
		if a.Name.Space == "" || a.Name.Space == rdfNS || a.Name.Space == "xmlns" {
			continue
		}
		val := strings.TrimSpace(a.Value)
		if val == "" {
			continue
		}
		*tags = append(*tags, Tag{
			Group: "XMP-" + nsToPrefix(a.Name.Space),
			Name:  a.Name.Local,
			Value: val,
		})
	}

	// child element form, e.g. <dc:title><rdf:Alt>...</rdf:Alt></dc:title>
	for i := range desc.Nodes {
		child := &desc.Nodes[i]
		if child.XMLName.Space == "" || child.XMLName.Space == rdfNS {
			continue
		}
		if val := extractValue(child); val != "" {
			*tags = append(*tags, Tag{
				Group: "XMP-" + nsToPrefix(child.XMLName.Space),
				Name:  child.XMLName.Local,
				Value: val,
			})
		}
	}
}
