package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/auditlog/internal/auth"
	"github.com/gyaneshwarpardhi/auditlog/internal/query"
	"github.com/gyaneshwarpardhi/auditlog/internal/writer"
)

const testSecret = "cli-test-secret-0123456789"

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "auditlog.yaml")
	body := "store:\n" +
		"  driver: sqlite\n" +
		"  dsn: " + filepath.Join(dir, "audit.db") + "\n" +
		"  auto_migrate: true\n" +
		"auth:\n" +
		"  jwt_secret: " + testSecret + "\n" +
		"retention:\n" +
		"  days: 7\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "auditctl", cmd.Use)
	for _, name := range []string{"migrate", "sweep", "purge", "query", "log", "token"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t), "--format", "xml", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLogThenQuery(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "--format", "json", "log",
		"--type", "login_failed", "--message", "user alice", "--severity", "warning",
		"--actor", "cron", "--address", "203.0.113.9")
	require.NoError(t, err, out)
	var rec writer.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.NotZero(t, rec.ID)
	assert.Equal(t, "203.0.113.9", rec.Event.SourceAddress)
	assert.Equal(t, "cron", rec.Event.Actor)

	_, err = run(t, "--config", cfg, "log", "--type", "export", "--address", "not-an-ip")
	require.NoError(t, err)

	out, err = run(t, "--config", cfg, "--format", "json", "query", "--severity", "warning")
	require.NoError(t, err, out)
	var res query.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Items, 1)
	assert.Equal(t, "login_failed", res.Items[0].Type)

	out, err = run(t, "--config", cfg, "query", "--type", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "0.0.0.0")
	assert.Contains(t, out, "Guest")
	assert.Contains(t, out, "page 1/1, 1 total")
}

func TestLogRequiresType(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t), "log", "--message", "x")
	assert.Error(t, err)
}

func TestPurgeAndSweep(t *testing.T) {
	cfg := writeConfig(t)
	for i := 0; i < 2; i++ {
		_, err := run(t, "--config", cfg, "log", "--type", "t")
		require.NoError(t, err)
	}

	out, err := run(t, "--config", cfg, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 0 event(s)")

	_, err = run(t, "--config", cfg, "purge")
	assert.Error(t, err)
	_, err = run(t, "--config", cfg, "purge", "--before", "someday")
	assert.Error(t, err)

	out, err = run(t, "--config", cfg, "purge", "--before", "2999-01-01")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "deleted 2 event(s)"), out)
}

func TestMigrateIsIdempotent(t *testing.T) {
	cfg := writeConfig(t)
	for i := 0; i < 2; i++ {
		out, err := run(t, "--config", cfg, "migrate")
		require.NoError(t, err)
		assert.Contains(t, out, "is provisioned")
	}
}

func TestToken(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "--config", cfg, "token", "--actor", "ops-bob")
	require.NoError(t, err)

	m := auth.NewManager(testSecret, "operator")
	id, err := m.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops-bob", id.Actor)
	assert.True(t, m.IsOperator(id))

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "token", "--actor", "x")
	assert.ErrorIs(t, err, auth.ErrNoSecret)
}
