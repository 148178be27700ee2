package media

import (
	"crypto"
	"crypto/x509"
	"fmt"

	"github.com/pion/dtls/v2/pkg/crypto/fingerprint"
	"github.com/pion/dtls/v2/pkg/crypto/selfsign"
)

// localFingerprint generates the process certificate once and returns its
// sha-256 fingerprint, advertised on every transport.
func localFingerprint() (DtlsFingerprint, error) {
	cert, err := selfsign.GenerateSelfSigned()
	if err != nil {
		return DtlsFingerprint{}, fmt.Errorf("generate dtls certificate: %w", err)
	}
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return DtlsFingerprint{}, fmt.Errorf("parse dtls certificate: %w", err)
	}
	value, err := fingerprint.Fingerprint(parsed, crypto.SHA256)
	if err != nil {
		return DtlsFingerprint{}, fmt.Errorf("dtls fingerprint: %w", err)
	}
	return DtlsFingerprint{Algorithm: "sha-256", Value: value}, nil
}

func validateRemoteDtls(p DtlsParameters) error {
	if len(p.Fingerprints) == 0 {
		return ErrInvalidDtlsParameters
	}
	for _, fp := range p.Fingerprints {
		if fp.Value == "" {
			return ErrInvalidDtlsParameters
		}
		if _, err := fingerprint.HashFromString(fp.Algorithm); err != nil {
			return ErrInvalidDtlsParameters
		}
	}
	switch p.Role {
	case "", "auto", "client", "server":
		return nil
	default:
		return ErrInvalidDtlsParameters
	}
}
