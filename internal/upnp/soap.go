// ABOUTME: SOAP envelope client for UPnP control endpoints
// ABOUTME: Builds action requests, escapes arguments, parses responses and faults
package upnp

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Arg is one named action argument. Argument order is preserved on the wire
// because some renderers reject envelopes with reordered arguments.
type Arg struct {
	Name  string
	Value string
}

// Error is a failed control action: a SOAP fault or a non-200 response.
type Error struct {
	Action  string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upnp: %s failed: %s", e.Action, e.Message)
}

// Client invokes SOAP actions against renderer control URLs.
type Client struct {
	http *http.Client
}

// NewClient returns a client whose requests time out after timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

var argEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// Invoke posts action to endpoint and returns the response fields keyed by
// their local element names. Non-200 responses come back as *Error carrying
// the fault description when the renderer supplied one.
func (c *Client) Invoke(ctx context.Context, endpoint, serviceType, action string, args []Arg) (map[string]string, error) {
	body := buildEnvelope(serviceType, action, args)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", `"`+serviceType+"#"+action+`"`)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", action, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := faultMessage(data)
		if msg == "" {
			msg = fmt.Sprintf("renderer returned %s", resp.Status)
		}
		return nil, &Error{Action: action, Status: resp.StatusCode, Message: msg}
	}

	fields, err := parseActionResponse(data, action)
	if err != nil {
		return nil, fmt.Errorf("parse %s response: %w", action, err)
	}
	return fields, nil
}

// buildEnvelope renders the fixed SOAP 1.1 skeleton around the action element.
func buildEnvelope(serviceType, action string, args []Arg) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	b.WriteString("<s:Body>")
	fmt.Fprintf(&b, `<u:%s xmlns:u="%s">`, action, serviceType)
	for _, a := range args {
		fmt.Fprintf(&b, "<%s>%s</%s>", a.Name, argEscaper.Replace(a.Value), a.Name)
	}
	fmt.Fprintf(&b, "</u:%s>", action)
	b.WriteString("</s:Body></s:Envelope>")
	return b.String()
}

// faultMessage pulls a human-readable message out of a fault body. UPnP
// renderers put the useful text in errorDescription; plain SOAP faults only
// carry faultstring.
func faultMessage(body []byte) string {
	var faultstring string
	d := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := d.Token()
		if err != nil {
			return faultstring
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "errorDescription":
			if text, err := elementText(d); err == nil && text != "" {
				return text
			}
		case "faultstring":
			if text, err := elementText(d); err == nil && faultstring == "" {
				faultstring = text
			}
		}
	}
}

// parseActionResponse finds the <action>Response element and returns its
// immediate children keyed by local name.
func parseActionResponse(body []byte, action string) (map[string]string, error) {
	want := action + "Response"
	d := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("no %s element", want)
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != want {
			continue
		}
		return childFields(d)
	}
}

// childFields collects the text of each immediate child element until the
// parent closes. The decoder is positioned just past the parent's start tag.
func childFields(d *xml.Decoder) (map[string]string, error) {
	fields := make(map[string]string)
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			text, err := elementText(d)
			if err != nil {
				return nil, err
			}
			fields[t.Name.Local] = text
		case xml.EndElement:
			return fields, nil
		}
	}
}

// elementText reads to the end of the current element and returns its direct
// character data. The decoder is positioned just past the element's start tag.
func elementText(d *xml.Decoder) (string, error) {
	var text strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 1 {
				text.Write(t)
			}
		}
	}
	return text.String(), nil
}
