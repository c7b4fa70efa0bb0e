package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile names the TLS ClientHello a provider transport presents.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard crypto/tls
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// randomAttempts bounds handshakes per dial for ProfileRandom. Some
// randomized hellos carry curves or protocols a server rejects.
const randomAttempts = 8

// ParseProfile maps a config value to a Profile. Empty selects ProfileGo.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileGo, nil
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom:
		return p, nil
	default:
		return "", fmt.Errorf("fingerprint: unknown profile %q", s)
	}
}

// Options configures Transport.
type Options struct {
	Profile Profile
	// Proxy selects an outbound proxy per request. Optional.
	Proxy func(*http.Request) (*url.URL, error)
	// InsecureSkipVerify disables certificate checks. Only for tests.
	InsecureSkipVerify bool
}

func helloID(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("fingerprint: unknown profile %q", p)
	}
}

// Transport returns an http.RoundTripper presenting the ClientHello of
// opts.Profile. ProfileGo yields a plain cloned http.Transport.
func Transport(opts Options) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	if opts.Profile == ProfileGo || opts.Profile == "" {
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	id, err := helloID(opts.Profile)
	if err != nil {
		return nil, err
	}
	attempts := 1
	if opts.Profile == ProfileRandom {
		attempts = randomAttempts
	}
	dial := transport.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		var lastErr error
		for range attempts {
			conn, retry, err := handshake(ctx, dial, network, addr, id, opts)
			if err == nil {
				return conn, nil
			}
			lastErr = err
			if !retry || ctx.Err() != nil {
				break
			}
		}
		return nil, lastErr
	}

	return transport, nil
}

// handshake dials addr and completes a uTLS handshake. retry reports whether
// a fresh randomized ClientHello may succeed where this one failed.
func handshake(ctx context.Context, dial func(context.Context, string, string) (net.Conn, error), network, addr string, id utls.ClientHelloID, opts Options) (conn net.Conn, retry bool, err error) {
	tcpConn, err := dial(ctx, network, addr)
	if err != nil {
		return nil, false, err
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	cfg := &utls.Config{ServerName: host, InsecureSkipVerify: opts.InsecureSkipVerify}
	var uConn *utls.UConn
	if spec, ok := http1Spec(id); ok {
		uConn = utls.UClient(tcpConn, cfg, utls.HelloCustom)
		if err := uConn.ApplyPreset(&spec); err != nil {
			_ = tcpConn.Close()
			return nil, false, fmt.Errorf("fingerprint: apply %s preset: %w", opts.Profile, err)
		}
	} else {
		uConn = utls.UClient(tcpConn, cfg, id)
	}

	if err := uConn.HandshakeContext(ctx); err != nil {
		_ = tcpConn.Close()
		return nil, true, fmt.Errorf("fingerprint: utls handshake: %w", err)
	}
	// Randomized hellos may still offer h2, which http.Transport cannot
	// speak over this connection.
	if proto := uConn.ConnectionState().NegotiatedProtocol; proto != "" && proto != "http/1.1" {
		_ = uConn.Close()
		return nil, true, fmt.Errorf("fingerprint: server negotiated %q", proto)
	}
	return uConn, false, nil
}

// http1Spec returns the preset for id with h2 removed from ALPN, since
// http.Transport speaks HTTP/1.1 over a custom TLS dialer. Randomized
// profiles have no fixed preset and report false.
func http1Spec(id utls.ClientHelloID) (utls.ClientHelloSpec, bool) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return utls.ClientHelloSpec{}, false
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return spec, true
}
