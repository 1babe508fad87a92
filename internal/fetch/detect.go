package fetch

import (
	"bytes"
	"net/http"
	"strings"
)

// detector examines a fetch result for a bot-protection challenge and names
// the vendor when one is found.
type detector func(res *Result) (bool, string)

func defaultDetectors() []detector {
	return []detector{
		detectCloudflare,
		detectDataDome,
		detectAkamai,
		detectPerimeterX,
	}
}

// analyzeBlock updates res with the challenge status. DataDome is the
// common case on the French marketplaces this engine targets.
func analyzeBlock(res *Result) bool {
	for _, d := range defaultDetectors() {
		if hit, src := d(res); hit {
			res.Blocked = true
			res.BlockSource = src
			return true
		}
	}
	res.Blocked = false
	res.BlockSource = ""
	return false
}

func header(h http.Header, key string) string {
	if h == nil {
		return ""
	}
	return h.Get(key)
}

func detectCloudflare(res *Result) (bool, string) {
	if res.StatusCode != http.StatusForbidden && res.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(res.Headers, "Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	for _, sig := range [][]byte{
		[]byte("cf-browser-verification"),
		[]byte("cf-turnstile"),
		[]byte("Attention Required! | Cloudflare"),
	} {
		if bytes.Contains(res.Body, sig) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

func detectDataDome(res *Result) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(res.Headers, "Server")), "datadome") ||
		header(res.Headers, "X-DataDome") != "" ||
		header(res.Headers, "X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bytes.Contains(res.Body, []byte("geo.captcha-delivery.com")) ||
		bytes.Contains(res.Body, []byte("datadome")) {
		return true, "DataDome"
	}
	return false, ""
}

func detectAkamai(res *Result) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(res.Headers, "Server")), "akamai") {
		return true, "Akamai"
	}
	if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectPerimeterX(res *Result) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if header(res.Headers, "X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	for _, sig := range [][]byte{
		[]byte("client.perimeterx.net"),
		[]byte("px-captcha"),
		[]byte("_pxBlock"),
	} {
		if bytes.Contains(res.Body, sig) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}
