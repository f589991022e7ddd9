package guest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

// Metadata is the connection/header material a fingerprint derives from.
type Metadata struct {
	IP             string
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
}

// MetadataFromRequest extracts fingerprint material. The client IP prefers the
// first forwarded-for hop, then the real-ip header, then the socket address.
func MetadataFromRequest(r *http.Request) Metadata {
	ip := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-For"), ",")[0])
	if ip == "" {
		ip = strings.TrimSpace(r.Header.Get("X-Real-Ip"))
	}
	if ip == "" {
		host := r.RemoteAddr
		if idx := strings.LastIndex(host, ":"); idx >= 0 {
			host = host[:idx]
		}
		ip = strings.Trim(host, "[]")
	}
	return Metadata{
		IP:             ip,
		UserAgent:      r.Header.Get("User-Agent"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
	}
}

// fingerprintPayload keeps fields in canonical (alphabetical) key order so the
// derived hash is stable across processes.
type fingerprintPayload struct {
	AcceptEncoding string `json:"accept_encoding"`
	AcceptLanguage string `json:"accept_language"`
	IP             string `json:"ip"`
	UserAgent      string `json:"user_agent"`
}

// Fingerprint derives the stable pseudo-identity hash and the separate
// user-agent hash. Raw user agents are never stored.
func Fingerprint(meta Metadata) (fingerprintHash, userAgentHash string) {
	payload, _ := json.Marshal(fingerprintPayload{
		AcceptEncoding: meta.AcceptEncoding,
		AcceptLanguage: meta.AcceptLanguage,
		IP:             meta.IP,
		UserAgent:      meta.UserAgent,
	})
	sum := sha256.Sum256(payload)
	uaSum := sha256.Sum256([]byte(meta.UserAgent))
	return hex.EncodeToString(sum[:]), hex.EncodeToString(uaSum[:])
}
