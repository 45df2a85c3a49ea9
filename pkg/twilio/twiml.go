package twilio

import (
	"encoding/xml"
	"fmt"
)

type streamVerb struct {
	URL string `xml:"url,attr"`
}

type connectVerb struct {
	Stream streamVerb `xml:"Stream"`
}

type pauseVerb struct {
	Length int `xml:"length,attr"`
}

type voiceResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Pause   *pauseVerb   `xml:"Pause,omitempty"`
	Connect *connectVerb `xml:"Connect,omitempty"`
}

// CallControlDocument renders the XML document the setup webhook returns:
// pause briefly, then connect the call's media to the bridge WebSocket.
func CallControlDocument(host string, pauseSeconds int) ([]byte, error) {
	if host == "" {
		return nil, fmt.Errorf("public host is required")
	}
	if pauseSeconds < 0 {
		pauseSeconds = 0
	}
	doc := voiceResponse{
		Connect: &connectVerb{Stream: streamVerb{URL: fmt.Sprintf("wss://%s/twilio/reply", host)}},
	}
	if pauseSeconds > 0 {
		doc.Pause = &pauseVerb{Length: pauseSeconds}
	}
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal call-control document: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
