package media

// Wire shapes follow the mediasoup-client JSON conventions so browser
// clients can hand them straight to their Device/Transport objects.

type RtpCodecCapability struct {
	Kind                 string         `json:"kind"`
	MimeType             string         `json:"mimeType"`
	PreferredPayloadType int            `json:"preferredPayloadType,omitempty"`
	ClockRate            int            `json:"clockRate"`
	Channels             int            `json:"channels,omitempty"`
	Parameters           map[string]any `json:"parameters,omitempty"`
}

type RtpHeaderExtension struct {
	Kind        string `json:"kind"`
	URI         string `json:"uri"`
	PreferredID int    `json:"preferredId"`
}

type RtpCapabilities struct {
	Codecs           []RtpCodecCapability `json:"codecs"`
	HeaderExtensions []RtpHeaderExtension `json:"headerExtensions,omitempty"`
}

type RtpCodecParameters struct {
	MimeType    string         `json:"mimeType"`
	PayloadType int            `json:"payloadType"`
	ClockRate   int            `json:"clockRate"`
	Channels    int            `json:"channels,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type RtpEncodingParameters struct {
	SSRC uint32 `json:"ssrc,omitempty"`
}

type RtcpParameters struct {
	CNAME       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize"`
}

type RtpParameters struct {
	MID       string                  `json:"mid,omitempty"`
	Codecs    []RtpCodecParameters    `json:"codecs"`
	Encodings []RtpEncodingParameters `json:"encodings,omitempty"`
	Rtcp      RtcpParameters          `json:"rtcp"`
}

type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	IceLite          bool   `json:"iceLite"`
}

type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       int    `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DtlsParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

// TransportOptions selects the protocols offered in ICE candidates.
// When neither protocol is enabled both are offered, UDP preferred.
type TransportOptions struct {
	EnableUDP bool `json:"enableUdp"`
	EnableTCP bool `json:"enableTcp"`
	PreferUDP bool `json:"preferUdp"`
}

type RoutingContextInfo struct {
	ID              string          `json:"id"`
	CallID          string          `json:"callId"`
	RtpCapabilities RtpCapabilities `json:"rtpCapabilities"`
}

type TransportDescriptor struct {
	ID             string         `json:"id"`
	IceParameters  IceParameters  `json:"iceParameters"`
	IceCandidates  []IceCandidate `json:"iceCandidates"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

type ProducerDescriptor struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type ConsumerDescriptor struct {
	ID            string        `json:"id"`
	ProducerID    string        `json:"producerId"`
	Kind          string        `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
	Paused        bool          `json:"paused"`
}

type ProducerInfo struct {
	ProducerID string `json:"producerId"`
	Kind       string `json:"kind"`
}

// Stats is a point-in-time count of registry contents.
type Stats struct {
	RoutingContexts int
	Transports      int
	ReverseIndex    int
	Producers       int
	Consumers       int
}
