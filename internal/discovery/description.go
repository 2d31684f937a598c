package discovery

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/thatsimonsguy/panel-provisioner/internal/model"
)

var ErrMalformedDescription = errors.New("discovery: malformed device description")

// node is either a leaf, naming the panel field an element's text goes to, or
// a schema describing the children of a nested element.
type node interface {
	isNode()
}

type leaf func(p *model.DiscoveredPanel) *string

type schema map[string]node

func (leaf) isNode()   {}
func (schema) isNode() {}

var deviceSchema = schema{
	"friendlyName":     leaf(func(p *model.DiscoveredPanel) *string { return &p.FriendlyName }),
	"manufacturer":     leaf(func(p *model.DiscoveredPanel) *string { return &p.Manufacturer }),
	"modelDescription": leaf(func(p *model.DiscoveredPanel) *string { return &p.ModelDescription }),
	"modelName":        leaf(func(p *model.DiscoveredPanel) *string { return &p.ModelName }),
	"modelNumber":      leaf(func(p *model.DiscoveredPanel) *string { return &p.ModelNumber }),
	"serialNumber":     leaf(func(p *model.DiscoveredPanel) *string { return &p.SerialNumber }),
}

var rootSchema = schema{
	"URLBase": leaf(func(p *model.DiscoveredPanel) *string { return &p.URLBase }),
	"device":  deviceSchema,
}

// ParseDescription extracts panel details from a UPnP device description.
// When an element appears more than once, the first non-empty value is kept.
func ParseDescription(r io.Reader) (model.DiscoveredPanel, error) {
	var p model.DiscoveredPanel
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return p, fmt.Errorf("%w: no root element", ErrMalformedDescription)
		}
		if err != nil {
			return p, fmt.Errorf("%w: %v", ErrMalformedDescription, err)
		}
		if _, ok := tok.(xml.StartElement); ok {
			if err := walk(dec, rootSchema, &p); err != nil {
				return p, fmt.Errorf("%w: %v", ErrMalformedDescription, err)
			}
			return p, nil
		}
	}
}

// walk consumes tokens up to the end of the current element.
func walk(dec *xml.Decoder, s schema, p *model.DiscoveredPanel) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch n := s[t.Name.Local].(type) {
			case leaf:
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return err
				}
				text = strings.TrimSpace(text)
				if dst := n(p); *dst == "" && text != "" {
					*dst = text
				}
			case schema:
				if err := walk(dec, n, p); err != nil {
					return err
				}
			default:
				if err := dec.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}
