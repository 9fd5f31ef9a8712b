package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	portal "github.com/dppd-rp/portal"
	"github.com/dppd-rp/portal/password"
	"github.com/dppd-rp/portal/permission"
	"github.com/dppd-rp/portal/token"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHashPasswordProducesVerifiableHash(t *testing.T) {
	out, err := execute(t, "correct horse battery\n", "hash-password", "--memory", "8192", "--time", "1", "--parallelism", "1")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(hash, "$argon2id$"), hash)

	hasher, err := password.NewHasher(password.DefaultConfig())
	require.NoError(t, err)
	ok, err := hasher.Verify("correct horse battery", hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHashPasswordRejectsEmptyInput(t *testing.T) {
	_, err := execute(t, "", "hash-password")
	require.Error(t, err)

	_, err = execute(t, "\n", "hash-password")
	require.Error(t, err)
}

func writeConfig(t *testing.T, redisAddr string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portal.yaml")
	doc := "environment: development\nredis:\n  url: redis://" + redisAddr + "/0\nlog:\n  format: text\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestRolesSeedIsIdempotent(t *testing.T) {
	t.Setenv(token.EnvironmentEnvVar, "development")
	mr := miniredis.RunT(t)
	path := writeConfig(t, mr.Addr())

	out, err := execute(t, "", "--config", path, "roles", "seed")
	require.NoError(t, err)
	require.Contains(t, out, "defaults written")
	require.True(t, mr.Exists(permission.RoleConfigKey))

	out, err = execute(t, "", "--config", path, "roles", "seed")
	require.NoError(t, err)
	require.Contains(t, out, "already up to date")
}

func TestRolesSeedFailsWithoutRedis(t *testing.T) {
	t.Setenv(token.EnvironmentEnvVar, "development")
	mr := miniredis.RunT(t)
	path := writeConfig(t, mr.Addr())
	mr.Close()

	_, err := execute(t, "", "--config", path, "roles", "seed")
	require.Error(t, err)
}

func TestLoadtestAgainstMiniredis(t *testing.T) {
	var out bytes.Buffer
	err := runLoadtest(context.Background(), &out, loadtestOptions{sessions: 20, concurrency: 4, ops: 100})
	require.NoError(t, err)
	require.Contains(t, out.String(), "resolve: ops=100 failures=0")
	require.Contains(t, out.String(), "authorize: ops=100 failures=0")
}

func TestLoadtestRejectsZeroCounts(t *testing.T) {
	_, err := execute(t, "", "loadtest", "--ops", "0")
	require.Error(t, err)
}

func TestNewAppServesAPIAndMetrics(t *testing.T) {
	t.Setenv(token.EnvironmentEnvVar, "development")
	mr := miniredis.RunT(t)

	cfg := portal.DefaultConfig()
	cfg.Environment = token.EnvDevelopment
	cfg.Cookie.Secure = false
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"
	cfg.Audit.Enabled = false

	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.close)
	require.True(t, mr.Exists(permission.RoleConfigKey), "startup seeds role config")

	rec := httptest.NewRecorder()
	a.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "dppd_login_success_total 0")
}

func TestNewAppWithOTelLogging(t *testing.T) {
	t.Setenv(token.EnvironmentEnvVar, "development")
	mr := miniredis.RunT(t)

	cfg := portal.DefaultConfig()
	cfg.Environment = token.EnvDevelopment
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"
	cfg.Audit.Enabled = false
	cfg.Metrics.Prometheus = false
	cfg.Metrics.OTelLogInterval = 50 * time.Millisecond

	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NotNil(t, a.otel)
	a.close()
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(portal.LogConfig{Level: "debug", Format: "json"}, &buf).Debug("hello")
	require.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())

	buf.Reset()
	newLogger(portal.LogConfig{Level: "warn", Format: "text"}, &buf).Info("hidden")
	require.Empty(t, buf.String())
}
