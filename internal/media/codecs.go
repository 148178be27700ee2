package media

import (
	"strings"
)

const (
	KindAudio = "audio"
	KindVideo = "video"
)

// audioCodecs is the fixed profile of every routing context: stereo Opus at 48 kHz.
func audioCodecs() []RtpCodecCapability {
	return []RtpCodecCapability{{
		Kind:                 KindAudio,
		MimeType:             "audio/opus",
		PreferredPayloadType: 100,
		ClockRate:            48000,
		Channels:             2,
		Parameters:           map[string]any{"useinbandfec": 1},
	}}
}

func audioHeaderExtensions() []RtpHeaderExtension {
	return []RtpHeaderExtension{
		{Kind: KindAudio, URI: "urn:ietf:params:rtp-hdrext:sdes:mid", PreferredID: 1},
		{Kind: KindAudio, URI: "urn:ietf:params:rtp-hdrext:ssrc-audio-level", PreferredID: 10},
	}
}

func codecMatches(a RtpCodecCapability, mimeType string, clockRate, channels int) bool {
	if !strings.EqualFold(a.MimeType, mimeType) || a.ClockRate != clockRate {
		return false
	}
	// Channels only matter for audio and default to 1 when omitted.
	if a.Kind == KindAudio {
		return normChannels(a.Channels) == normChannels(channels)
	}
	return true
}

func normChannels(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// supportedCodec returns the routing codec matching one of the producer's codecs.
func supportedCodec(routerCodecs []RtpCodecCapability, kind string, params RtpParameters) (RtpCodecCapability, bool) {
	for _, rc := range routerCodecs {
		if rc.Kind != kind {
			continue
		}
		for _, pc := range params.Codecs {
			if codecMatches(rc, pc.MimeType, pc.ClockRate, pc.Channels) {
				return rc, true
			}
		}
	}
	return RtpCodecCapability{}, false
}

// canConsume reports whether a receiver with caps can decode a producer using codec.
// It returns the receiver's matching codec so its payload type is honoured.
func canConsume(codec RtpCodecCapability, caps RtpCapabilities) (RtpCodecCapability, bool) {
	for _, rc := range caps.Codecs {
		if rc.Kind != "" && rc.Kind != codec.Kind {
			continue
		}
		if codecMatches(codec, rc.MimeType, rc.ClockRate, rc.Channels) {
			return rc, true
		}
	}
	return RtpCodecCapability{}, false
}
