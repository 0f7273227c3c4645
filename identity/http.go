package identity

import (
	"net"
	"net/http"
	"strings"

	"github.com/jonwraymond/gatekeep/auth"
)

// DefaultSignatureHeader is the client signature header read by FromHTTP.
const DefaultSignatureHeader = "X-Client-Signature"

// HTTPOptions controls how FromHTTP builds a Request.
type HTTPOptions struct {
	// TrustForwardedFor uses the first X-Forwarded-For hop as the origin.
	// Enable only behind a proxy that overwrites the header.
	TrustForwardedFor bool

	// SignatureHeader names the client signature header.
	// Default: "X-Client-Signature"
	SignatureHeader string

	// UserAgentFamily fingerprints the User-Agent by browser, OS and device
	// family instead of the full string, so a browser update does not move
	// a caller to a new key.
	UserAgentFamily bool

	// AttributeHeaders are copied into Request.Attributes, keyed by their
	// canonical header name. Missing headers are skipped.
	AttributeHeaders []string
}

// FromHTTP extracts the identity-bearing fields from r. The principal and
// tenant come from an auth.Identity attached to the request context.
func FromHTTP(r *http.Request, opts HTTPOptions) Request {
	req := Request{Origin: clientOrigin(r, opts.TrustForwardedFor)}

	if id := auth.IdentityFromContext(r.Context()); id != nil && !id.IsAnonymous() {
		req.Principal = id.Principal
		req.TenantID = id.TenantID
	}

	header := opts.SignatureHeader
	if header == "" {
		header = DefaultSignatureHeader
	}
	sig := strings.TrimSpace(r.Header.Get(header))
	ua := r.UserAgent()
	if opts.UserAgentFamily {
		ua = UserAgentFamily(ua)
	}
	if ua != "" {
		sig += "|" + ua
	}
	req.Signature = sig

	for _, h := range opts.AttributeHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		if req.Attributes == nil {
			req.Attributes = make(map[string]string, len(opts.AttributeHeaders))
		}
		req.Attributes[http.CanonicalHeaderKey(h)] = v
	}

	return req
}

func clientOrigin(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
