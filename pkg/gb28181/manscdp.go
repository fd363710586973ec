package gb28181

import (
	"bytes"
	"encoding/xml"
	"io"

	"gb28181-simulator/pkg/errors"
)

// ContentTypeMANSCDP is the Content-Type of GB28181 XML command bodies.
const ContentTypeMANSCDP = "Application/MANSCDP+xml"

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Query is an inbound MANSCDP query envelope (Catalog, DeviceInfo, ...).
type Query struct {
	XMLName  xml.Name `xml:"Query"`
	CmdType  string   `xml:"CmdType"`
	SN       int      `xml:"SN"`
	DeviceID string   `xml:"DeviceID"`
}

// ParseQuery decodes a Query body. Platforms send GB2312-declared XML whose
// payload is plain ASCII for the fields read here, so a straight decode
// works; an undecodable body yields a ProtocolError and the caller falls
// back to defaults.
func ParseQuery(body []byte) (*Query, error) {
	var q Query
	dec := xml.NewDecoder(bytes.NewReader(body))
	// Fields read here are ASCII even in GB2312-declared bodies.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := dec.Decode(&q); err != nil {
		return nil, errors.NewProtocolError("undecodable MANSCDP query", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return &q, nil
}

// CatalogItem is one channel entry in a Catalog response.
type CatalogItem struct {
	DeviceID     string `xml:"DeviceID"`
	Name         string `xml:"Name"`
	Manufacturer string `xml:"Manufacturer"`
	Model        string `xml:"Model"`
	Owner        string `xml:"Owner"`
	CivilCode    string `xml:"CivilCode"`
	Address      string `xml:"Address"`
	Parental     int    `xml:"Parental"`
	SafetyWay    int    `xml:"SafetyWay"`
	RegisterWay  int    `xml:"RegisterWay"`
	Secrecy      int    `xml:"Secrecy"`
	Status       string `xml:"Status"`
	PTZType      int    `xml:"PTZType"`
}

// DeviceList wraps catalog items with the declared count attribute.
type DeviceList struct {
	Num   int           `xml:"Num,attr"`
	Items []CatalogItem `xml:"Item"`
}

// CatalogResponse is the Catalog reply envelope.
type CatalogResponse struct {
	XMLName    xml.Name   `xml:"Response"`
	CmdType    string     `xml:"CmdType"`
	SN         int        `xml:"SN"`
	DeviceID   string     `xml:"DeviceID"`
	SumNum     int        `xml:"SumNum"`
	DeviceList DeviceList `xml:"DeviceList"`
}

// BuildCatalogBody renders the channel inventory as a UTF-8 Catalog
// Response. sn echoes the inbound query's serial so the platform can
// correlate the reply.
func BuildCatalogBody(deviceID, civilCode string, sn int, channels []Channel) ([]byte, error) {
	items := make([]CatalogItem, 0, len(channels))
	for _, ch := range channels {
		items = append(items, CatalogItem{
			DeviceID:     ch.ID,
			Name:         ch.Name,
			Manufacturer: ch.Manufacturer,
			Model:        ch.Model,
			Owner:        "Owner",
			CivilCode:    civilCode,
			Address:      "TestAddress",
			Parental:     0,
			SafetyWay:    0,
			RegisterWay:  1,
			Secrecy:      0,
			Status:       ch.Status,
			PTZType:      ch.PTZType,
		})
	}

	resp := CatalogResponse{
		CmdType:    "Catalog",
		SN:         sn,
		DeviceID:   deviceID,
		SumNum:     len(channels),
		DeviceList: DeviceList{Num: len(channels), Items: items},
	}

	raw, err := xml.MarshalIndent(resp, "", "    ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xmlHeader), raw...), nil
}

// KeepaliveNotify is the heartbeat envelope.
type KeepaliveNotify struct {
	XMLName  xml.Name `xml:"Notify"`
	CmdType  string   `xml:"CmdType"`
	SN       int64    `xml:"SN"`
	DeviceID string   `xml:"DeviceID"`
	Status   string   `xml:"Status"`
}

// BuildKeepaliveBody renders a Keepalive Notify with the given serial.
func BuildKeepaliveBody(deviceID string, sn int64) ([]byte, error) {
	notify := KeepaliveNotify{
		CmdType:  "Keepalive",
		SN:       sn,
		DeviceID: deviceID,
		Status:   "OK",
	}
	raw, err := xml.MarshalIndent(notify, "", "    ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xmlHeader), raw...), nil
}

// DeviceInfoResponse answers the platform's DeviceInfo query.
type DeviceInfoResponse struct {
	XMLName      xml.Name `xml:"Response"`
	CmdType      string   `xml:"CmdType"`
	SN           int      `xml:"SN"`
	DeviceID     string   `xml:"DeviceID"`
	DeviceName   string   `xml:"DeviceName"`
	Result       string   `xml:"Result"`
	Manufacturer string   `xml:"Manufacturer"`
	Model        string   `xml:"Model"`
	Firmware     string   `xml:"Firmware"`
	Channel      int      `xml:"Channel"`
}

// BuildDeviceInfoBody renders a DeviceInfo Response describing the device.
func BuildDeviceInfoBody(deviceID string, sn, channelCount int) ([]byte, error) {
	resp := DeviceInfoResponse{
		CmdType:      "DeviceInfo",
		SN:           sn,
		DeviceID:     deviceID,
		DeviceName:   "GB28181 Simulator",
		Result:       "OK",
		Manufacturer: "TestDevice",
		Model:        "Simulator",
		Firmware:     "1.0",
		Channel:      channelCount,
	}
	raw, err := xml.MarshalIndent(resp, "", "    ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xmlHeader), raw...), nil
}
