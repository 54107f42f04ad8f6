package websocket

import (
	"net/url"
	"strings"

	"github.com/limeprotocol/limews"
)

// NegotiateEncryption reports the encryption mode implied by the scheme of uri.
// Secure schemes (wss, https) mean TLS; everything else, including unparsable URIs, means none.
func NegotiateEncryption(uri string) limews.Encryption {
	u, err := url.Parse(uri)
	if err != nil {
		return limews.EncryptionNone
	}

	switch strings.ToLower(u.Scheme) {
	case "wss", "https":
		return limews.EncryptionTLS
	default:
		return limews.EncryptionNone
	}
}

// SupportedCompression returns the compression modes the transport can use.
func SupportedCompression() []limews.Compression {
	return []limews.Compression{limews.CompressionNone}
}

// SupportedEncryption returns the encryption modes the transport can report.
func SupportedEncryption() []limews.Encryption {
	return []limews.Encryption{limews.EncryptionNone, limews.EncryptionTLS}
}
