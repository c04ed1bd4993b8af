package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("mysql discrete fields", func(t *testing.T) {
		d := DatabaseConfig{Driver: "mysql", Host: "db.example.com", Port: 4000, User: "admin", Password: "p@ss:w0rd!", Database: "shop"}
		dsn, err := d.DSN()
		require.NoError(t, err)

		parsed, err := mysql.ParseDSN(dsn)
		require.NoError(t, err)
		assert.Equal(t, "admin", parsed.User)
		assert.Equal(t, "p@ss:w0rd!", parsed.Passwd)
		assert.Equal(t, "db.example.com:4000", parsed.Addr)
		assert.Equal(t, "shop", parsed.DBName)
		assert.True(t, parsed.ParseTime)
		assert.Equal(t, time.UTC, parsed.Loc)
	})

	t.Run("mysql default port", func(t *testing.T) {
		d := DatabaseConfig{Driver: "mysql", Host: "localhost", User: "root", Database: "test"}
		dsn, err := d.DSN()
		require.NoError(t, err)
		parsed, err := mysql.ParseDSN(dsn)
		require.NoError(t, err)
		assert.Equal(t, "localhost:3306", parsed.Addr)
	})

	t.Run("mysql connection string gains parseTime", func(t *testing.T) {
		d := DatabaseConfig{Driver: "mysql", ConnectionString: "root:pw@tcp(127.0.0.1:3306)/app"}
		dsn, err := d.DSN()
		require.NoError(t, err)
		assert.Contains(t, dsn, "parseTime=true")
		assert.Contains(t, dsn, "/app")
	})

	t.Run("mysql invalid connection string", func(t *testing.T) {
		d := DatabaseConfig{Driver: "mysql", ConnectionString: "root:pw@tcp(127.0.0.1:3306)app"}
		_, err := d.DSN()
		assert.ErrorContains(t, err, "database.dsn")
	})

	t.Run("postgres discrete fields", func(t *testing.T) {
		d := DatabaseConfig{Driver: "postgres", Host: "db", User: "app", Password: "s3cret", Database: "shop"}
		dsn, err := d.DSN()
		require.NoError(t, err)
		assert.Equal(t, "postgres://app:s3cret@db:5432/shop", dsn)
	})

	t.Run("postgres connection string passes through", func(t *testing.T) {
		d := DatabaseConfig{Driver: "pgx", ConnectionString: "host=db user=app dbname=shop"}
		dsn, err := d.DSN()
		require.NoError(t, err)
		assert.Equal(t, "host=db user=app dbname=shop", dsn)
	})

	t.Run("sqlite path", func(t *testing.T) {
		d := DatabaseConfig{Driver: "sqlite", Path: "data.db"}
		dsn, err := d.DSN()
		require.NoError(t, err)
		assert.Equal(t, "file:data.db?_busy_timeout=5000", dsn)
	})

	t.Run("unsupported driver", func(t *testing.T) {
		d := DatabaseConfig{Driver: "oracle"}
		_, err := d.DSN()
		assert.Error(t, err)
	})
}

func TestNormalizeDriver(t *testing.T) {
	assert.Equal(t, "pgx", NormalizeDriver("PostgreSQL"))
	assert.Equal(t, "sqlite3", NormalizeDriver("sqlite"))
	assert.Equal(t, "mysql", NormalizeDriver(" tidb "))
	assert.Equal(t, "oracle", NormalizeDriver("oracle"))
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	DefineFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Precedence(t *testing.T) {
	cfgPath := writeFile(t, "querycore.yaml", `
database:
  driver: mysql
  host: filehost
  port: 3307
  user: fileuser
model:
  path: /models/blog.yaml
observability:
  logging:
    level: debug
`)
	t.Setenv("QUERYCORE_DATABASE_PORT", "3308")
	t.Setenv("QUERYCORE_DATABASE_USER", "envuser")

	cfg, err := Load(newFlags(t, "--config", cfgPath, "--database.host", "flaghost", "--database.user", "flaguser"))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "flaghost", cfg.Database.Host)
	assert.Equal(t, "flaguser", cfg.Database.User)
	assert.Equal(t, 3308, cfg.Database.Port)
	assert.Equal(t, "/models/blog.yaml", cfg.Model.Path)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.Equal(t, "text", cfg.Observability.Logging.Format)
	assert.Equal(t, 10, cfg.Database.Pool.MaxOpen)
	assert.Equal(t, 5*time.Minute, cfg.Database.Pool.MaxLifetime)
}

func TestLoad_ReadsSecretsFromFiles(t *testing.T) {
	dsnPath := writeFile(t, "dsn", "  root:pw@tcp(db:3306)/app\n")
	cfg, err := Load(newFlags(t, "--database.driver", "mysql", "--database.dsn_file", dsnPath))
	require.NoError(t, err)
	assert.Equal(t, "root:pw@tcp(db:3306)/app", cfg.Database.ConnectionString)

	pwdPath := writeFile(t, "password", "hunter2\n")
	cfg, err = Load(newFlags(t, "--database.password_file", pwdPath))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Database.Password)
}

func TestLoad_AliasDriverAndRoles(t *testing.T) {
	cfg, err := Load(newFlags(t, "--database.driver", "postgres", "--database.allowed_roles", "reader,writer"))
	require.NoError(t, err)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, []string{"reader", "writer"}, cfg.Database.AllowedRoles)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	cfgPath := writeFile(t, "querycore.yaml", `
database:
  driver: sqlite3
  max_open_conns: 4
`)
	_, err := Load(newFlags(t, "--config", cfgPath))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_open_conns")
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidateSingleStdinFileSource(t *testing.T) {
	v := viper.New()
	v.Set("database.dsn_file", "@-")
	v.Set("database.password_file", "/tmp/password")
	require.NoError(t, validateSingleStdinFileSource(v))

	v.Set("database.password_file", " @- ")
	err := validateSingleStdinFileSource(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn_file")
	assert.Contains(t, err.Error(), "database.password_file")
}

func TestConfig_Validate(t *testing.T) {
	validConfig := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Driver: "sqlite3",
				Path:   "querycore.db",
				Pool:   PoolConfig{MaxOpen: 10, MaxIdle: 5},
			},
			Model: ModelConfig{Path: "blog.yaml"},
			Observability: ObservabilityConfig{
				TraceSampleRatio: 1,
				Logging:          LoggingConfig{Level: "info", Format: "json"},
				OTLP:             OTLPConfig{Protocol: "grpc", Compression: "gzip"},
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		result := validConfig().Validate()
		assert.False(t, result.HasErrors(), result.Error())
		assert.Empty(t, result.Warnings)
	})

	errorCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad mysql dsn", func(c *Config) {
			c.Database.Driver = "mysql"
			c.Database.ConnectionString = "no-slash"
		}, "database.dsn"},
		{"role on sqlite", func(c *Config) { c.Database.Role = "reader" }, "database.role"},
		{"role outside allowlist", func(c *Config) {
			c.Database.Driver = "mysql"
			c.Database.Role = "admin"
			c.Database.AllowedRoles = []string{"reader"}
		}, "database.role"},
		{"negative pool", func(c *Config) { c.Database.Pool.MaxOpen = -1 }, "database.pool.max_open"},
		{"missing retry interval", func(c *Config) { c.Database.ConnectionTimeout = time.Minute }, "database.connection_retry_interval"},
		{"missing model", func(c *Config) { c.Model.Path = " " }, "model.path"},
		{"log level", func(c *Config) { c.Observability.Logging.Level = "verbose" }, "observability.logging.level"},
		{"sample ratio", func(c *Config) { c.Observability.TraceSampleRatio = 2 }, "observability.trace_sample_ratio"},
		{"otlp protocol", func(c *Config) { c.Observability.OTLP.Protocol = "udp" }, "observability.otlp.protocol"},
		{"http endpoint", func(c *Config) {
			c.Observability.Traces = &OTLPConfig{Protocol: "http/protobuf", Endpoint: "not an endpoint"}
		}, "observability.traces.endpoint"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			result := cfg.Validate()
			require.True(t, result.HasErrors())
			fields := make([]string, len(result.Errors))
			for i, e := range result.Errors {
				fields[i] = e.Field
			}
			assert.Contains(t, fields, tc.field)
		})
	}

	t.Run("warnings", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Pool.MaxIdle = 20
		cfg.Observability.SQLCommenterEnabled = true
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		require.Len(t, result.Warnings, 2)
		assert.Equal(t, "database.pool.max_idle", result.Warnings[0].Field)
		assert.Equal(t, "observability.sqlcommenter_enabled", result.Warnings[1].Field)
	})
}

func TestGetTracesConfig_MergesOverrides(t *testing.T) {
	o := ObservabilityConfig{
		OTLP: OTLPConfig{
			Endpoint:    "collector:4317",
			Protocol:    "grpc",
			Headers:     map[string]string{"a": "1", "b": "2"},
			Timeout:     10 * time.Second,
			Compression: "gzip",
		},
		Traces: &OTLPConfig{
			Endpoint: "traces:4318",
			Protocol: "http/protobuf",
			Insecure: true,
			Headers:  map[string]string{"b": "3"},
		},
	}
	got := o.GetTracesConfig()
	assert.Equal(t, "traces:4318", got.Endpoint)
	assert.Equal(t, "http/protobuf", got.Protocol)
	assert.True(t, got.Insecure)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, got.Headers)
	assert.Equal(t, 10*time.Second, got.Timeout)
	assert.Equal(t, "gzip", got.Compression)

	assert.Equal(t, o.OTLP, o.GetLogsConfig())
}
