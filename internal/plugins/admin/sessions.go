package admin

import (
	"strings"

	ua "github.com/mileusna/useragent"

	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// ActiveSession is a live session with its device described for humans.
type ActiveSession struct {
	auth.SessionInfo
	Device  string `json:"device"`
	Browser string `json:"browser"`
}

func newActiveSession(info auth.SessionInfo) ActiveSession {
	device, browser := DescribeUserAgent(info.Session.UserAgent)
	return ActiveSession{SessionInfo: info, Device: device, Browser: browser}
}

// DescribeUserAgent returns a device label ("Desktop · macOS") and a
// browser label ("Firefox 124") for a User-Agent header.
func DescribeUserAgent(header string) (device, browser string) {
	if strings.TrimSpace(header) == "" {
		return "Unknown device", "Unknown browser"
	}
	agent := ua.Parse(header)

	kind := "Desktop"
	switch {
	case agent.Bot:
		kind = "Bot"
	case agent.Tablet:
		kind = "Tablet"
	case agent.Mobile:
		kind = "Mobile"
	case !agent.Desktop:
		kind = "Device"
	}
	device = kind
	if agent.OS != "" {
		device += " · " + agent.OS
	}
	if agent.Device != "" {
		device += " (" + agent.Device + ")"
	}

	browser = agent.Name
	if browser == "" {
		browser = "Unknown browser"
	} else if major, _, _ := strings.Cut(agent.Version, "."); major != "" {
		browser += " " + major
	}
	return device, browser
}
