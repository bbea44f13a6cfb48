package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/market-data/internal/config"
)

// BuildConnString builds a PostgreSQL URL from config. User and password are
// escaped as userinfo, so any character is safe in either.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	query := url.Values{"sslmode": {sslMode}}
	if cfg.ApplicationName != "" {
		query.Set("application_name", cfg.ApplicationName)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	return u.String()
}
