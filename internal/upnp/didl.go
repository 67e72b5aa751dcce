// ABOUTME: Minimal DIDL-Lite metadata for SetAVTransportURI
// ABOUTME: Gives renderers a display title and protocol info for shared files
package upnp

import (
	"encoding/xml"
	"fmt"
	"path"
	"strings"
)

type didlLite struct {
	XMLName xml.Name   `xml:"DIDL-Lite"`
	NS      string     `xml:"xmlns,attr"`
	NSDC    string     `xml:"xmlns:dc,attr"`
	NSUPnP  string     `xml:"xmlns:upnp,attr"`
	Items   []didlItem `xml:"item"`
}

type didlItem struct {
	ID         string    `xml:"id,attr"`
	ParentID   string    `xml:"parentID,attr"`
	Restricted string    `xml:"restricted,attr"`
	Title      string    `xml:"dc:title"`
	Class      string    `xml:"upnp:class"`
	Res        []didlRes `xml:"res"`
}

type didlRes struct {
	ProtocolInfo string `xml:"protocolInfo,attr"`
	URL          string `xml:",chardata"`
}

// MediaMetadata builds the DIDL-Lite document describing one shared track.
// Renderers accept an empty metadata string, but many only show a title
// when given one of these.
func MediaMetadata(uri, title string) string {
	doc := didlLite{
		NS:     "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/",
		NSDC:   "http://purl.org/dc/elements/1.1/",
		NSUPnP: "urn:schemas-upnp-org:metadata-1-0/upnp/",
		Items: []didlItem{{
			ID:         "0",
			ParentID:   "-1",
			Restricted: "1",
			Title:      title,
			Class:      "object.item.audioItem.musicTrack",
			Res: []didlRes{{
				ProtocolInfo: fmt.Sprintf("http-get:*:%s:*", audioMIME(uri)),
				URL:          uri,
			}},
		}},
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return ""
	}
	return string(out)
}

// audioMIME guesses the stream's MIME type from the URI's extension.
func audioMIME(uri string) string {
	switch strings.ToLower(path.Ext(uri)) {
	case ".wav":
		return "audio/wav"
	case ".aiff":
		return "audio/aiff"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".aac", ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
