// ABOUTME: UPnP device description parsing
// ABOUTME: Token-driven extraction of naming fields and control endpoints
package discovery

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Service types are matched by substring so version suffixes keep working.
const (
	avTransportMarker      = "AVTransport"
	renderingControlMarker = "RenderingControl"
)

// parseDescription builds a Device from a description document. The first
// occurrence of each naming field wins, which keeps stray duplicates deeper
// in the document from overwriting the device-level values.
func parseDescription(data []byte, location, id string) (Device, error) {
	dev := Device{ID: id, Location: location}

	d := xml.NewDecoder(bytes.NewReader(data))
	var current string
	var text strings.Builder
	var inService bool
	var svcType, svcControl string

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Device{}, fmt.Errorf("parse description: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
			text.Reset()
			if current == "service" {
				inService = true
				svcType, svcControl = "", ""
			}
		case xml.CharData:
			if current != "" {
				text.Write(t)
			}
		case xml.EndElement:
			value := strings.TrimSpace(text.String())
			text.Reset()
			switch t.Name.Local {
			case "friendlyName":
				if dev.FriendlyName == "" && value != "" {
					dev.FriendlyName = value
				}
			case "manufacturer":
				if dev.Manufacturer == "" && value != "" {
					dev.Manufacturer = value
				}
			case "modelName":
				if dev.ModelName == "" && value != "" {
					dev.ModelName = value
				}
			case "serviceType":
				if inService && value != "" {
					svcType = value
				}
			case "controlURL":
				if inService && value != "" {
					svcControl = value
				}
			case "service":
				inService = false
				dev.addService(svcType, svcControl, location)
			}
			current = ""
		}
	}

	if dev.FriendlyName == "" {
		return Device{}, errors.New("description has no friendly name")
	}
	return dev, nil
}

// addService records the control URL for recognized service types; the
// first service of each kind wins and unresolvable URLs are skipped.
func (dev *Device) addService(svcType, controlURL, location string) {
	if svcType == "" || controlURL == "" {
		return
	}
	var target *string
	switch {
	case strings.Contains(svcType, avTransportMarker):
		target = &dev.AVTransportURL
	case strings.Contains(svcType, renderingControlMarker):
		target = &dev.RenderingControlURL
	default:
		return
	}
	if *target != "" {
		return
	}
	resolved, err := resolveControlURL(location, controlURL)
	if err != nil {
		return
	}
	*target = resolved
}

// resolveControlURL resolves a possibly relative control URL against the
// description document's own URL: absolute URLs pass through, absolute
// paths keep the document's scheme and host, and relative paths resolve
// against its directory.
func resolveControlURL(location, control string) (string, error) {
	base, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(control)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
