package identity

import (
	"strings"

	"github.com/avct/uasurfer"
)

// UserAgentFamily reduces a User-Agent to its browser, OS and device
// families without versions, e.g. "BrowserChrome/OSWindows/DeviceComputer".
// Agents uasurfer does not recognize are returned trimmed but otherwise
// unchanged.
func UserAgentFamily(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return ""
	}
	p := uasurfer.Parse(ua)
	if p.Browser.Name == uasurfer.BrowserUnknown && p.OS.Name == uasurfer.OSUnknown {
		return ua
	}
	return p.Browser.Name.String() + "/" + p.OS.Name.String() + "/" + p.DeviceType.String()
}
