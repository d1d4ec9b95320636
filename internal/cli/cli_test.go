package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/mailbeforecart/internal/auth"
	"github.com/dukerupert/mailbeforecart/internal/database"
	"github.com/dukerupert/mailbeforecart/internal/reminder"
	"github.com/dukerupert/mailbeforecart/internal/store"
)

// workdir isolates a test from any .env in the repository and returns a
// database path inside it.
func workdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return filepath.Join(dir, "test.db")
}

func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func seedCarts(t *testing.T, dbPath string, emails ...string) {
	t.Helper()
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	carts := store.NewCartStore(db)
	created := time.Now().UTC().Add(-72 * time.Hour)
	for _, e := range emails {
		_, err := carts.InsertAt(context.Background(), e, 5, "Candle", created)
		require.NoError(t, err)
	}
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mailbeforecart", cmd.Use)
	assert.Contains(t, cmd.Long, "reminder")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"serve"}, {"remind"}, {"export"}, {"clear"}, {"operator", "create"}, {"operator", "password"}} {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	portFlag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, portFlag)
	assert.Equal(t, "p", portFlag.Shorthand)
}

func TestOperatorCreateAndPassword(t *testing.T) {
	dbPath := workdir(t)

	out, err := execute(t, nil, "--db", dbPath, "operator", "create", "--email", "Ops@Example.com", "--password", "first-password-123")
	require.NoError(t, err)
	assert.Contains(t, out, "created admin operator ops@example.com")

	_, err = execute(t, nil, "--db", dbPath, "operator", "create", "--email", "ops@example.com", "--password", "another-password-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	out, err = execute(t, strings.NewReader("second-password-456\n"), "--db", dbPath, "operator", "password", "--email", "ops@example.com", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "password updated")

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	op, err := store.NewOperatorStore(db).GetByEmail(context.Background(), "ops@example.com")
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.True(t, auth.CheckPassword(op.PasswordHash, "second-password-456"))
	assert.False(t, auth.CheckPassword(op.PasswordHash, "first-password-123"))
}

func TestOperatorCreateValidation(t *testing.T) {
	dbPath := workdir(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing email", []string{"operator", "create", "--password", "long-enough-pw"}, "email"},
		{"missing password", []string{"operator", "create", "--email", "a@example.com"}, "password is required"},
		{"weak password", []string{"operator", "create", "--email", "a@example.com", "--password", "short"}, "password"},
		{"bad role", []string{"operator", "create", "--email", "a@example.com", "--password", "long-enough-pw", "--role", "owner"}, "unknown role"},
		{"unknown operator", []string{"operator", "password", "--email", "ghost@example.com", "--password", "long-enough-pw"}, "no operator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, nil, append([]string{"--db", dbPath}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRemind(t *testing.T) {
	dbPath := workdir(t)
	seedCarts(t, dbPath, "one@example.com", "two@example.com")

	out, err := execute(t, nil, "--db", dbPath, "remind", "--json")
	require.NoError(t, err)

	var res reminder.CycleResult
	require.NoError(t, json.Unmarshal([]byte(out[strings.Index(out, "{"):]), &res))
	assert.Equal(t, 2, res.Due)
	assert.Equal(t, 2, res.Sent)

	out, err = execute(t, nil, "--db", dbPath, "remind")
	require.NoError(t, err)
	assert.Contains(t, out, "due=0 sent=0")
}

func TestExport(t *testing.T) {
	dbPath := workdir(t)
	seedCarts(t, dbPath, "one@example.com")

	out, err := execute(t, nil, "--db", dbPath, "--log-level", "error", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "Email,Product ID,Product Name,Date Created,Status,Reminder Sent")
	assert.Contains(t, out, "one@example.com,5,Candle,")

	_, err = execute(t, nil, "--db", dbPath, "export", "--status", "pending", "--output", "auto")
	require.NoError(t, err)
	name := "abandoned_cart_emails_filtered_" + time.Now().UTC().Format("2006-01-02") + ".csv"
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "one@example.com")
}

func TestExportBadFilter(t *testing.T) {
	dbPath := workdir(t)

	_, err := execute(t, nil, "--db", dbPath, "export", "--from", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad date")
}

func TestClear(t *testing.T) {
	dbPath := workdir(t)
	seedCarts(t, dbPath, "one@example.com", "two@example.com")

	_, err := execute(t, nil, "--db", dbPath, "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out, err := execute(t, nil, "--db", dbPath, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2 records")
}
