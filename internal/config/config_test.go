package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helper function tests
// ---------------------------------------------------------------------------

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string // nil = don't set; pointer to distinguish "" from unset
		fallback string
		want     string
	}{
		{name: "returns fallback when unset", key: "SUBTRACK_TEST_GETENV_UNSET", setVal: nil, fallback: "default", want: "default"},
		{name: "returns env value when set", key: "SUBTRACK_TEST_GETENV_SET", setVal: strPtr("custom"), fallback: "default", want: "custom"},
		{name: "returns fallback when empty string", key: "SUBTRACK_TEST_GETENV_EMPTY", setVal: strPtr(""), fallback: "default", want: "default"},
		{name: "preserves whitespace", key: "SUBTRACK_TEST_GETENV_WS", setVal: strPtr("  spaced  "), fallback: "x", want: "  spaced  "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got := getEnv(tc.key, tc.fallback)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback int
		want     int
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "SUBTRACK_TEST_INT_UNSET", setVal: nil, fallback: 42, want: 42},
		{name: "parses valid int", key: "SUBTRACK_TEST_INT_VALID", setVal: strPtr("8080"), fallback: 0, want: 8080},
		{name: "parses negative int", key: "SUBTRACK_TEST_INT_NEG", setVal: strPtr("-1"), fallback: 0, want: -1},
		{name: "parses zero", key: "SUBTRACK_TEST_INT_ZERO", setVal: strPtr("0"), fallback: 99, want: 0},
		{name: "returns fallback for empty string", key: "SUBTRACK_TEST_INT_EMPTY", setVal: strPtr(""), fallback: 25, want: 25},
		{name: "errors on non-numeric", key: "SUBTRACK_TEST_INT_NAN", setVal: strPtr("abc"), fallback: 0, wantErr: true},
		{name: "errors on float", key: "SUBTRACK_TEST_INT_FLOAT", setVal: strPtr("3.14"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvInt(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("SUBTRACK_TEST_FLOAT_OK", "2.5")
	t.Setenv("SUBTRACK_TEST_FLOAT_BAD", "fast")

	got, err := getEnvFloat("SUBTRACK_TEST_FLOAT_OK", 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got, 1e-9)

	got, err = getEnvFloat("SUBTRACK_TEST_FLOAT_UNSET", 7)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, got, 1e-9)

	_, err = getEnvFloat("SUBTRACK_TEST_FLOAT_BAD", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUBTRACK_TEST_FLOAT_BAD")
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback bool
		want     bool
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "SUBTRACK_TEST_BOOL_UNSET", setVal: nil, fallback: false, want: false},
		{name: "fallback true when unset", key: "SUBTRACK_TEST_BOOL_UNSETTRUE", setVal: nil, fallback: true, want: true},
		{name: "parses true", key: "SUBTRACK_TEST_BOOL_TRUE", setVal: strPtr("true"), fallback: false, want: true},
		{name: "parses 0", key: "SUBTRACK_TEST_BOOL_ZERO", setVal: strPtr("0"), fallback: true, want: false},
		{name: "errors on invalid", key: "SUBTRACK_TEST_BOOL_INV", setVal: strPtr("yes"), fallback: false, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvBool(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback time.Duration
		want     time.Duration
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "SUBTRACK_TEST_DUR_UNSET", setVal: nil, fallback: 5 * time.Second, want: 5 * time.Second},
		{name: "parses seconds", key: "SUBTRACK_TEST_DUR_SEC", setVal: strPtr("30s"), fallback: 0, want: 30 * time.Second},
		{name: "parses composite", key: "SUBTRACK_TEST_DUR_COMP", setVal: strPtr("1h30m"), fallback: 0, want: 90 * time.Minute},
		{name: "errors on invalid", key: "SUBTRACK_TEST_DUR_INV", setVal: strPtr("notaduration"), fallback: 0, wantErr: true},
		{name: "errors on bare number", key: "SUBTRACK_TEST_DUR_BARE", setVal: strPtr("30"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvDuration(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("SUBTRACK_TEST_LIST", " 111, ,slack:C1 ,222 ")

	assert.Equal(t, []string{"111", "slack:C1", "222"}, getEnvList("SUBTRACK_TEST_LIST", nil))
	assert.Nil(t, getEnvList("SUBTRACK_TEST_LIST_UNSET", nil))
}

// ---------------------------------------------------------------------------
// Load() error cases
// ---------------------------------------------------------------------------

func TestLoad_InvalidEnvVars(t *testing.T) {
	tests := []struct {
		name   string
		envs   map[string]string
		errMsg string
	}{
		{name: "unknown zone", envs: map[string]string{"SUBTRACK_REPORT_TZ": "Mars/Olympus"}, errMsg: "SUBTRACK_REPORT_TZ"},
		{name: "hour not a number", envs: map[string]string{"SUBTRACK_REPORT_HOUR": "nine"}, errMsg: "SUBTRACK_REPORT_HOUR"},
		{name: "hour too high", envs: map[string]string{"SUBTRACK_REPORT_HOUR": "24"}, errMsg: "SUBTRACK_REPORT_HOUR"},
		{name: "hour negative", envs: map[string]string{"SUBTRACK_REPORT_HOUR": "-1"}, errMsg: "SUBTRACK_REPORT_HOUR"},
		{name: "minute too high", envs: map[string]string{"SUBTRACK_REPORT_MINUTE": "60"}, errMsg: "SUBTRACK_REPORT_MINUTE"},
		{name: "admin only not a bool", envs: map[string]string{"SUBTRACK_BOT_ADMIN_ONLY": "yes"}, errMsg: "SUBTRACK_BOT_ADMIN_ONLY"},
		{name: "unknown driver", envs: map[string]string{"SUBTRACK_STORE_DRIVER": "mysql"}, errMsg: "SUBTRACK_STORE_DRIVER"},
		{name: "postgres port zero", envs: map[string]string{"SUBTRACK_STORE_DRIVER": "postgres", "SUBTRACK_DB_PORT": "0"}, errMsg: "SUBTRACK_DB_PORT"},
		{name: "postgres port too high", envs: map[string]string{"SUBTRACK_STORE_DRIVER": "postgres", "SUBTRACK_DB_PORT": "65536"}, errMsg: "SUBTRACK_DB_PORT"},
		{name: "postgres max conns zero", envs: map[string]string{"SUBTRACK_STORE_DRIVER": "postgres", "SUBTRACK_DB_MAX_CONNS": "0"}, errMsg: "SUBTRACK_DB_MAX_CONNS"},
		{name: "db port not a number", envs: map[string]string{"SUBTRACK_DB_PORT": "abc"}, errMsg: "SUBTRACK_DB_PORT"},
		{name: "read timeout invalid", envs: map[string]string{"SUBTRACK_SERVER_READ_TIMEOUT": "soon"}, errMsg: "SUBTRACK_SERVER_READ_TIMEOUT"},
		{name: "write timeout zero", envs: map[string]string{"SUBTRACK_SERVER_WRITE_TIMEOUT": "0s"}, errMsg: "SUBTRACK_SERVER_WRITE_TIMEOUT"},
		{name: "shutdown timeout negative", envs: map[string]string{"SUBTRACK_SERVER_SHUTDOWN_TIMEOUT": "-1s"}, errMsg: "SUBTRACK_SERVER_SHUTDOWN_TIMEOUT"},
		{name: "webhook rps zero", envs: map[string]string{"SUBTRACK_WEBHOOK_RPS": "0"}, errMsg: "SUBTRACK_WEBHOOK_RPS"},
		{name: "webhook burst zero", envs: map[string]string{"SUBTRACK_WEBHOOK_BURST": "0"}, errMsg: "SUBTRACK_WEBHOOK_BURST"},
		{name: "redis db not a number", envs: map[string]string{"SUBTRACK_REDIS_DB": "abc"}, errMsg: "SUBTRACK_REDIS_DB"},
		{name: "poll timeout zero", envs: map[string]string{"SUBTRACK_TELEGRAM_POLL_TIMEOUT": "0"}, errMsg: "SUBTRACK_TELEGRAM_POLL_TIMEOUT"},
		{name: "short jwt secret", envs: map[string]string{"SUBTRACK_API_JWT_SECRET": "short"}, errMsg: "SUBTRACK_API_JWT_SECRET"},
		{name: "log format", envs: map[string]string{"SUBTRACK_LOG_FORMAT": "xml"}, errMsg: "SUBTRACK_LOG_FORMAT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.envs {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

// ---------------------------------------------------------------------------
// Load() happy paths
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Report defaults.
	assert.Equal(t, "Europe/Moscow", cfg.Report.TZ)
	require.NotNil(t, cfg.Report.Location)
	assert.Equal(t, "Europe/Moscow", cfg.Report.Location.String())
	assert.Equal(t, "Subscriptions", cfg.Report.Label)
	assert.Equal(t, 9, cfg.Report.Hour)
	assert.Equal(t, 0, cfg.Report.Minute)
	assert.Empty(t, cfg.Report.Recipients)
	assert.False(t, cfg.Report.AdminOnly)

	// Server defaults.
	assert.Equal(t, ":10000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.InDelta(t, 20.0, cfg.Server.WebhookRPS, 1e-9)
	assert.Equal(t, 40, cfg.Server.WebhookBurst)
	assert.Empty(t, cfg.Server.APIToken)
	assert.Empty(t, cfg.Server.APIJWTSecret)
	assert.Empty(t, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Server.TrustProxy)

	// Store defaults.
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "subs.db", cfg.Store.SQLitePath)

	// Optional integrations are off.
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Telegram.BotToken)
	assert.Equal(t, 30, cfg.Telegram.PollTimeout)
	assert.Empty(t, cfg.Slack.BotToken)
	assert.Empty(t, cfg.Slack.SigningSecret)
	assert.Equal(t, "/subtrack", cfg.Slack.AppCommand)

	// Logging.
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Findings are returned, not logged.
	require.Len(t, cfg.Warnings, 2)
	assert.Contains(t, cfg.Warnings[0], "SUBTRACK_REPORT_RECIPIENTS")
	assert.Contains(t, cfg.Warnings[1], "unauthenticated")
}

func TestLoad_AllCustomValues(t *testing.T) {
	envs := map[string]string{
		// Report
		"SUBTRACK_REPORT_TZ":         "America/New_York",
		"SUBTRACK_REPORT_LABEL":      "Newsletter",
		"SUBTRACK_REPORT_HOUR":       "23",
		"SUBTRACK_REPORT_MINUTE":     "59",
		"SUBTRACK_REPORT_RECIPIENTS": "111,telegram:222,slack:C0123",
		"SUBTRACK_BOT_ADMIN_ONLY":    "true",
		// Server
		"SUBTRACK_SERVER_ADDR":             ":9090",
		"SUBTRACK_SERVER_READ_TIMEOUT":     "5s",
		"SUBTRACK_SERVER_WRITE_TIMEOUT":    "15s",
		"SUBTRACK_SERVER_SHUTDOWN_TIMEOUT": "3s",
		"SUBTRACK_CORS_ORIGINS":            "https://a.example.com, https://b.example.com",
		"SUBTRACK_WEBHOOK_RPS":             "2.5",
		"SUBTRACK_WEBHOOK_BURST":           "5",
		"SUBTRACK_API_TOKEN":               "api-token",
		"SUBTRACK_API_JWT_SECRET":          "prod-jwt-secret-256-bits-long!!!!",
		"SUBTRACK_SERVER_TRUST_PROXY":      "true",
		// Store
		"SUBTRACK_STORE_DRIVER": "Postgres",
		"SUBTRACK_DB_HOST":      "db.prod.internal",
		"SUBTRACK_DB_PORT":      "5433",
		"SUBTRACK_DB_USER":      "prod_user",
		"SUBTRACK_DB_PASSWORD":  "s3cret!",
		"SUBTRACK_DB_NAME":      "subtrack_prod",
		"SUBTRACK_DB_SSLMODE":   "require",
		"SUBTRACK_DB_MAX_CONNS": "50",
		// Redis
		"SUBTRACK_REDIS_ADDR":     "redis.prod:6380",
		"SUBTRACK_REDIS_PASSWORD": "redis-pass",
		"SUBTRACK_REDIS_DB":       "3",
		// Messengers
		"SUBTRACK_TELEGRAM_BOT_TOKEN":    "123:abc",
		"SUBTRACK_TELEGRAM_POLL_TIMEOUT": "60",
		"SUBTRACK_SLACK_BOT_TOKEN":       "xoxb-test",
		"SUBTRACK_SLACK_SIGNING_SECRET":  "slack-signing",
		"SUBTRACK_SLACK_APP_COMMAND":     "/subs",
		// Logging
		"SUBTRACK_LOG_LEVEL":  "DEBUG",
		"SUBTRACK_LOG_FORMAT": "console",
	}

	for k, v := range envs {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "America/New_York", cfg.Report.Location.String())
	assert.Equal(t, "Newsletter", cfg.Report.Label)
	assert.Equal(t, 23, cfg.Report.Hour)
	assert.Equal(t, 59, cfg.Report.Minute)
	assert.Equal(t, []string{"111", "telegram:222", "slack:C0123"}, cfg.Report.Recipients)
	assert.True(t, cfg.Report.AdminOnly)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 2.5, cfg.Server.WebhookRPS, 1e-9)
	assert.Equal(t, 5, cfg.Server.WebhookBurst)
	assert.Equal(t, "api-token", cfg.Server.APIToken)
	assert.Equal(t, "prod-jwt-secret-256-bits-long!!!!", cfg.Server.APIJWTSecret)
	assert.True(t, cfg.Server.TrustProxy)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "db.prod.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 50, cfg.Database.MaxConns)
	assert.Equal(t,
		"host=db.prod.internal port=5433 user=prod_user password=s3cret! dbname=subtrack_prod sslmode=require",
		cfg.Database.DSN())

	assert.Equal(t, "redis.prod:6380", cfg.Redis.Addr)
	assert.Equal(t, "redis-pass", cfg.Redis.Password)
	assert.Equal(t, 3, cfg.Redis.DB)

	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, 60, cfg.Telegram.PollTimeout)
	assert.Equal(t, "xoxb-test", cfg.Slack.BotToken)
	assert.Equal(t, "slack-signing", cfg.Slack.SigningSecret)
	assert.Equal(t, "/subs", cfg.Slack.AppCommand)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Empty(t, cfg.Warnings)
}

func TestLoad_Slack(t *testing.T) {
	t.Run("app command must be a slash command", func(t *testing.T) {
		t.Setenv("SUBTRACK_SLACK_SIGNING_SECRET", "slack-signing")
		t.Setenv("SUBTRACK_SLACK_APP_COMMAND", "subtrack")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SUBTRACK_SLACK_APP_COMMAND")
	})

	t.Run("signing secret without bot token warns", func(t *testing.T) {
		t.Setenv("SUBTRACK_SLACK_SIGNING_SECRET", "slack-signing")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Contains(t, cfg.Warnings, "SUBTRACK_SLACK_BOT_TOKEN is empty; Slack mentions will be acknowledged but not answered")
	})
}

func TestReportConfig_TelegramChatIDs(t *testing.T) {
	t.Parallel()

	rc := ReportConfig{Recipients: []string{"111", "telegram:-100200", "slack:C1", "@channel", "Telegram: 333"}}

	assert.Equal(t, []int64{111, -100200, 333}, rc.TelegramChatIDs())
	assert.Nil(t, (&ReportConfig{}).TelegramChatIDs())
}

func TestReportConfig_SlackChannelIDs(t *testing.T) {
	t.Parallel()

	rc := ReportConfig{Recipients: []string{"111", "slack:C1", "Slack: C2 ", "slack:", "telegram:5"}}

	assert.Equal(t, []string{"C1", "C2"}, rc.SlackChannelIDs())
	assert.Nil(t, (&ReportConfig{}).SlackChannelIDs())
}

// ---------------------------------------------------------------------------
// .env loading
// ---------------------------------------------------------------------------

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SUBTRACK_TEST_DOTENV_A=from-file\nSUBTRACK_TEST_DOTENV_B=from-file\n"), 0o600))

	t.Setenv("SUBTRACK_TEST_DOTENV_B", "from-env")
	// Registers cleanup for the variable the file sets.
	t.Setenv("SUBTRACK_TEST_DOTENV_A", "")
	require.NoError(t, os.Unsetenv("SUBTRACK_TEST_DOTENV_A"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))

	assert.Equal(t, "from-file", os.Getenv("SUBTRACK_TEST_DOTENV_A"))
	assert.Equal(t, "from-env", os.Getenv("SUBTRACK_TEST_DOTENV_B"), "existing variables win")
}

func strPtr(s string) *string { return &s }
