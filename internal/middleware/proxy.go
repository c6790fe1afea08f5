package middleware

import (
	"log/slog"
	"net"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies makes c.RealIP() read X-Forwarded-For, trusting only hops
// inside trustedCIDRs. Rate limiting and the security event log depend on
// accurate client addresses.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	e.IPExtractor = buildIPExtractor(trustedCIDRs)
}

// buildIPExtractor walks X-Forwarded-For from the right and returns the
// first address that is not one of our proxies, so a client cannot spoof
// its address by prepending entries.
func buildIPExtractor(trustedCIDRs []string) echo.IPExtractor {
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		opts = append(opts, echo.TrustIPRange(network))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
