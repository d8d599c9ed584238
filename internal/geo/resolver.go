package geo

import (
	"net"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"

	"gatehouse/internal/support"
)

const countryDBEnv = "GEOIP_COUNTRY_DB"

var (
	initOnce  sync.Once
	countryDB *geoip2.Reader
)

func load() {
	path := support.GetEnv(countryDBEnv, "data/GeoLite2-Country.mmdb")

	reader, err := geoip2.Open(path)
	if err != nil {
		log.Warn("GeoIP database unavailable, country scoring disabled", "path", path, "error", err)
		return
	}
	countryDB = reader
}

// CountryCode resolves an IP to its ISO country code. Unknown IPs and a
// missing database both return "" so the scorer treats them as neutral
// rather than suspicious.
func CountryCode(ipAddress string) string {
	initOnce.Do(load)

	if countryDB == nil {
		return ""
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return ""
	}

	record, err := countryDB.Country(ip)
	if err != nil {
		return ""
	}

	return record.Country.IsoCode
}
