package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	defaultMySQLPort    = 3306
	defaultPostgresPort = 5432
)

// DSN returns the data source name for the configured driver. A configured
// ConnectionString wins over the discrete fields; for MySQL it is normalized
// so time columns decode as time.Time in UTC.
func (d *DatabaseConfig) DSN() (string, error) {
	switch NormalizeDriver(d.Driver) {
	case "mysql":
		return d.mysqlDSN()
	case "pgx":
		return d.postgresDSN(), nil
	case "sqlite3":
		return d.sqliteDSN(), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", d.Driver)
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	if strings.TrimSpace(d.ConnectionString) != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("database.dsn: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.portOr(defaultMySQLPort)))
		cfg.DBName = d.Database
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func (d *DatabaseConfig) postgresDSN() string {
	if strings.TrimSpace(d.ConnectionString) != "" {
		return d.ConnectionString
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.portOr(defaultPostgresPort))),
		Path:   "/" + d.Database,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	return u.String()
}

func (d *DatabaseConfig) sqliteDSN() string {
	if strings.TrimSpace(d.ConnectionString) != "" {
		return d.ConnectionString
	}
	return "file:" + d.Path + "?_busy_timeout=5000"
}

func (d *DatabaseConfig) portOr(fallback int) int {
	if d.Port > 0 {
		return d.Port
	}
	return fallback
}
