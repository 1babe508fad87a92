// Package fingerprint builds HTTP transports whose TLS ClientHello matches
// a real browser. Marketplaces front their search pages with bot managers
// that score the handshake before the first byte of HTTP.
package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	utls "github.com/refraction-networking/utls"
)

// Profile selects a TLS fingerprint.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go" // plain crypto/tls, for tests
	ProfileRandom  Profile = "random"
)

// Transport returns a RoundTripper presenting the given profile. proxyFunc,
// when non-nil, is installed as the transport's Proxy.
func Transport(p Profile, proxyFunc func(*http.Request) (*url.URL, error)) (http.RoundTripper, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if proxyFunc != nil {
		base.Proxy = proxyFunc
	}
	if p == ProfileGo || p == "" {
		return base, nil
	}

	var hello utls.ClientHelloID
	switch p {
	case ProfileChrome:
		hello = utls.HelloChrome_Auto
	case ProfileFirefox:
		hello = utls.HelloFirefox_Auto
	case ProfileSafari:
		hello = utls.HelloIOS_Auto
	case ProfileRandom:
		hello = utls.HelloRandomizedALPN
	default:
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	base.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		raw, err := base.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		conn := utls.UClient(raw, &utls.Config{ServerName: host}, hello)
		if err := conn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("fingerprint: handshake with %s: %w", host, err)
		}
		return conn, nil
	}
	return base, nil
}
