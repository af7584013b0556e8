package rtc

import (
	"encoding/json"
	"strings"

	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/pion/webrtc/v4"
)

type codec struct {
	params webrtc.RTPCodecParameters
	typ    webrtc.RTPCodecType
}

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
}

var supportedCodecs = []codec{
	{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeOpus,
				ClockRate:   48000,
				Channels:    2,
				SDPFmtpLine: "minptime=10;useinbandfec=1",
			},
			PayloadType: 111,
		},
		typ: webrtc.RTPCodecTypeAudio,
	},
	{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeVP8,
				ClockRate:    90000,
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 96,
		},
		typ: webrtc.RTPCodecTypeVideo,
	},
}

// capCodec is the wire form of one entry of a capability descriptor.
type capCodec struct {
	Kind      domain.MediaKind `json:"kind"`
	MimeType  string           `json:"mimeType"`
	ClockRate uint32           `json:"clockRate"`
	Channels  uint16           `json:"channels,omitempty"`
}

type capabilities struct {
	Codecs []capCodec `json:"codecs"`
}

func kindOf(t webrtc.RTPCodecType) domain.MediaKind {
	if t == webrtc.RTPCodecTypeVideo {
		return domain.KindVideo
	}
	return domain.KindAudio
}

func encodeCapabilities(codecs []codec) core.Params {
	caps := capabilities{Codecs: make([]capCodec, 0, len(codecs))}
	for _, c := range codecs {
		caps.Codecs = append(caps.Codecs, capCodec{
			Kind:      kindOf(c.typ),
			MimeType:  c.params.MimeType,
			ClockRate: c.params.ClockRate,
			Channels:  c.params.Channels,
		})
	}
	b, _ := json.Marshal(caps)
	return b
}

// supports reports whether caps lists a codec able to carry mime.
func (c capabilities) supports(kind domain.MediaKind, mime string) bool {
	for _, cc := range c.Codecs {
		if cc.Kind == kind && strings.EqualFold(cc.MimeType, mime) {
			return true
		}
	}
	return false
}
