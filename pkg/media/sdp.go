package media

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
)

// DefaultSSRC is used when an INVITE offer carries no y= line.
const DefaultSSRC = "0000000001"

// FormatDescription is the GB28181 f= media description advertised in
// answers (video/H.264 sub-format, CIF-class defaults).
const FormatDescription = "v/2/4/25/1/4000a///"

// RTPTarget is the media destination negotiated from an INVITE offer.
type RTPTarget struct {
	IP   string
	Port int
	SSRC string
}

var (
	connPattern  = regexp.MustCompile(`c=IN IP4 (\d+\.\d+\.\d+\.\d+)`)
	videoPattern = regexp.MustCompile(`m=video (\d+)`)
	ssrcPattern  = regexp.MustCompile(`y=(\d+)`)
)

// splitExtensionLines separates GB28181 y=/f= lines from an SDP body so the
// remainder is standard SDP. Strict parsers reject the extension line types.
func splitExtensionLines(body string) (standard string, ssrc string) {
	var kept []string
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "y="):
			ssrc = strings.TrimPrefix(line, "y=")
		case strings.HasPrefix(line, "f="):
			// format description carries no transport information
		case line == "":
		default:
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\r\n") + "\r\n", ssrc
}

// ExtractRTPTarget pulls the RTP destination out of an INVITE's SDP offer:
// IP from the c= line, port from the m=video line, SSRC from the GB28181 y=
// extension. fallbackIP stands in when no c= line parses; a missing m=video
// line yields port 0 (callers must not start a relay for port 0); a missing
// y= line yields DefaultSSRC.
func ExtractRTPTarget(body []byte, fallbackIP string) RTPTarget {
	target := RTPTarget{IP: fallbackIP, Port: 0, SSRC: DefaultSSRC}

	standard, ssrc := splitExtensionLines(string(body))
	if ssrc != "" {
		target.SSRC = ssrc
	}

	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(standard)); err == nil {
		if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
			target.IP = desc.ConnectionInformation.Address.Address
		}
		for _, m := range desc.MediaDescriptions {
			if m.MediaName.Media != "video" {
				continue
			}
			target.Port = m.MediaName.Port.Value
			if m.ConnectionInformation != nil && m.ConnectionInformation.Address != nil {
				target.IP = m.ConnectionInformation.Address.Address
			}
			break
		}
		return target
	}

	// Platforms in the field emit SDP that standard parsers reject; fall
	// back to line-oriented extraction of the two fields we need.
	raw := string(body)
	if m := connPattern.FindStringSubmatch(raw); m != nil {
		target.IP = m[1]
	}
	if m := videoPattern.FindStringSubmatch(raw); m != nil {
		if port, err := strconv.Atoi(m[1]); err == nil {
			target.Port = port
		}
	}
	return target
}

// ExtractSSRC returns the y= value from a raw SDP body, or DefaultSSRC.
func ExtractSSRC(body []byte) string {
	if m := ssrcPattern.FindStringSubmatch(string(body)); m != nil {
		return m[1]
	}
	return DefaultSSRC
}

// BuildAnswer produces the SDP answer for a 200 OK to an INVITE. The answer
// advertises the GB28181 PS-over-RTP payload (96 PS/90000, sendonly) with an
// a=control line naming the channel's media source, plus the y= SSRC and f=
// format-description extension lines.
func BuildAnswer(localIP, sourceURL, ssrc string) ([]byte, error) {
	desc := sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(time.Now().Unix()),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: localIP,
		},
		SessionName: "Play",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: localIP},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "video",
					Port:    sdp.RangedPort{Value: 0},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{"96"},
				},
				Attributes: []sdp.Attribute{
					sdp.NewAttribute("rtpmap", "96 PS/90000"),
					sdp.NewPropertyAttribute("sendonly"),
					sdp.NewAttribute("control", sourceURL),
				},
			},
		},
	}

	raw, err := desc.Marshal()
	if err != nil {
		return nil, err
	}
	return append(raw, []byte(fmt.Sprintf("y=%s\r\nf=%s\r\n", ssrc, FormatDescription))...), nil
}
