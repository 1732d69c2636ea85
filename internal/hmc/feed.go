package hmc

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	logonNamespace     = "http://www.ibm.com/xmlns/systems/power/firmware/web/mc/2012_10/"
	logonContentType   = "application/vnd.ibm.powervm.web+xml; type=LogonRequest"
	logonAcceptType    = "application/vnd.ibm.powervm.web+xml; type=LogonResponse"
	sessionHeader      = "X-API-Session"
	categoryManagedSys = "ManagedSystem"
)

type logonRequest struct {
	XMLName       xml.Name `xml:"http://www.ibm.com/xmlns/systems/power/firmware/web/mc/2012_10/ LogonRequest"`
	SchemaVersion string   `xml:"schemaVersion,attr"`
	UserID        string   `xml:"UserID"`
	Password      string   `xml:"Password"`
}

type logonResponse struct {
	XMLName xml.Name `xml:"LogonResponse"`
	Session string   `xml:"X-API-Session"`
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID       string        `xml:"id"`
	Title    string        `xml:"title"`
	Category *atomCategory `xml:"category"`
	Link     *atomLink     `xml:"link"`
	System   *systemInfo   `xml:"content>ManagedSystem"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}

type systemInfo struct {
	SystemName string `xml:"SystemName"`
	State      string `xml:"State"`
}

func encodeLogon(user, password string) ([]byte, error) {
	body, err := xml.Marshal(logonRequest{SchemaVersion: "V1_0", UserID: user, Password: password})
	if err != nil {
		return nil, fmt.Errorf("encode logon request: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

func decodeLogon(body []byte) (string, error) {
	var resp logonResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode logon response: %w", err)
	}
	token := strings.TrimSpace(resp.Session)
	if token == "" {
		return "", fmt.Errorf("decode logon response: empty %s", sessionHeader)
	}
	return token, nil
}

func decodeFeed(body []byte) (atomFeed, error) {
	var feed atomFeed
	if len(strings.TrimSpace(string(body))) == 0 {
		return feed, nil
	}
	if err := xml.Unmarshal(body, &feed); err != nil {
		return atomFeed{}, fmt.Errorf("decode atom feed: %w", err)
	}
	return feed, nil
}

// metricLinks returns the JSON document links of ManagedSystem entries.
func (f atomFeed) metricLinks() []string {
	links := make([]string, 0, len(f.Entries))
	for _, e := range f.Entries {
		if e.Category == nil || e.Category.Term != categoryManagedSys {
			continue
		}
		if e.Link == nil || strings.TrimSpace(e.Link.Href) == "" {
			continue
		}
		links = append(links, strings.TrimSpace(e.Link.Href))
	}
	return links
}
