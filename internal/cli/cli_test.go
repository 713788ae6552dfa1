package cli

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-blockchain/ump-services/internal/ump"
	"github.com/bsv-blockchain/ump-services/pkg/types"
)

func hexHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// execute runs umpctl against dataDir and returns stdout.
func execute(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--datadir", dataDir, "--log-level", "off"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, dataDir string, args ...string) string {
	t.Helper()
	out, err := execute(t, dataDir, args...)
	require.NoError(t, err, "umpctl %v", args)
	return out
}

// decodeData unmarshals the data field of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func encodeToken(t *testing.T, dataDir, presentation, recovery string) string {
	t.Helper()
	out := mustExecute(t, dataDir, "--format", "json", "encode",
		"--presentation-hash", presentation, "--recovery-hash", recovery)
	var res EncodeResult
	decodeData(t, out, &res)
	require.NotEmpty(t, res.Script)
	require.NotEmpty(t, res.PrivKey, "generated key should be reported")
	return res.Script
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "umpctl", cmd.Use)
	assert.Contains(t, cmd.Long, "User Management Protocol")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"admit", "spend", "evict", "lookup", "stats", "reindex", "reset", "encode", "docs", "metadata"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"datadir", "config", "backend", "index", "topic", "strict", "log-level", "log-json", "log-file", "format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))

	_, err := execute(t, t.TempDir(), "--format", "xml", "docs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAdmitLookupSpend(t *testing.T) {
	dir := t.TempDir()
	ph, rh := hexHash("ph1"), hexHash("rh1")
	script := encodeToken(t, dir, ph, rh)

	out := mustExecute(t, dir, "admit", "tx1.0", "--script", script)
	assert.Equal(t, "Admitted tx1.0\n", out)

	out = mustExecute(t, dir, "lookup", "--presentation-hash", ph)
	assert.Equal(t, "tx1.0\n", out)
	out = mustExecute(t, dir, "lookup", "--recovery-hash", rh)
	assert.Equal(t, "tx1.0\n", out)

	out = mustExecute(t, dir, "--format", "json", "lookup", "--query", `{"outpoint":"tx1.0"}`)
	var got []types.Outpoint
	decodeData(t, out, &got)
	assert.Equal(t, []types.Outpoint{{TxID: "tx1", Index: 0}}, got)

	out = mustExecute(t, dir, "spend", "tx1.0")
	assert.Equal(t, "Removed tx1.0\n", out)

	out = mustExecute(t, dir, "lookup", "--presentation-hash", ph)
	assert.Equal(t, "No matching output\n", out)

	out = mustExecute(t, dir, "--format", "json", "lookup", "--presentation-hash", ph)
	got = nil
	decodeData(t, out, &got)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAdmit_NewestWins(t *testing.T) {
	dir := t.TempDir()
	ph := hexHash("account")

	mustExecute(t, dir, "admit", "old.0", "--script", encodeToken(t, dir, ph, hexHash("r1")))
	mustExecute(t, dir, "admit", "new.1", "--script", encodeToken(t, dir, ph, hexHash("r2")))

	out := mustExecute(t, dir, "lookup", "--presentation-hash", ph)
	assert.Equal(t, "new.1\n", out)
}

func TestAdmit_OtherTopicIgnored(t *testing.T) {
	dir := t.TempDir()
	script := encodeToken(t, dir, hexHash("p"), hexHash("r"))

	out := mustExecute(t, dir, "admit", "tx1.0", "--script", script, "--on-topic", "tm_other")
	assert.Contains(t, out, "Ignored tx1.0")

	out = mustExecute(t, dir, "lookup", "--outpoint", "tx1.0")
	assert.Equal(t, "No matching output\n", out)
}

func TestAdmit_CustomTopic(t *testing.T) {
	dir := t.TempDir()
	script := encodeToken(t, dir, hexHash("p"), hexHash("r"))

	mustExecute(t, dir, "--topic", "tm_custom", "admit", "tx1.0", "--script", script, "--on-topic", "tm_custom")
	out := mustExecute(t, dir, "--format", "json", "--topic", "tm_custom", "stats")
	var stats Stats
	decodeData(t, out, &stats)
	assert.Equal(t, "tm_custom", stats.Topic)
	assert.Equal(t, 1, stats.Records)
}

func TestAdmit_MalformedScript(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, dir, "admit", "tx1.0", "--script", "6a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ump.ErrDecode)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, dir, "admit", "tx1.0", "--script", "zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid script hex")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAdmit_ScriptFlagsRequired(t *testing.T) {
	_, err := execute(t, t.TempDir(), "admit", "tx1.0")
	require.Error(t, err)
}

func TestAdmit_BadOutpoint(t *testing.T) {
	_, err := execute(t, t.TempDir(), "admit", "nodot", "--script", "00")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid outpoint")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEvict(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "admit", "tx1.0", "--script", encodeToken(t, dir, hexHash("p"), hexHash("r")))

	out := mustExecute(t, dir, "evict", "tx1.0")
	assert.Equal(t, "Removed tx1.0\n", out)

	// Evicting again is a no-op.
	mustExecute(t, dir, "evict", "tx1.0")

	out = mustExecute(t, dir, "lookup", "--recovery-hash", hexHash("r"))
	assert.Equal(t, "No matching output\n", out)
}

func TestLookup_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"no query", []string{"lookup"}, ump.ErrNoQuery},
		{"empty object", []string{"lookup", "--query", "{}"}, ump.ErrUnsupportedQuery},
		{"bad hash", []string{"lookup", "--presentation-hash", "abcd"}, ump.ErrInvalidQuery},
		{"bad outpoint", []string{"lookup", "--outpoint", "tx1"}, ump.ErrInvalidQuery},
		{"strict", []string{"--strict", "lookup", "--presentation-hash", hexHash("p"), "--outpoint", "tx1.0"}, ump.ErrAmbiguousQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, dir, tt.args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, ExitFailure, GetExitCode(err))
		})
	}
}

func TestLookup_PrecedenceWithoutStrict(t *testing.T) {
	dir := t.TempDir()
	ph := hexHash("p")
	mustExecute(t, dir, "admit", "tx1.0", "--script", encodeToken(t, dir, ph, hexHash("r")))

	out := mustExecute(t, dir, "lookup", "--presentation-hash", ph, "--outpoint", "other.5")
	assert.Equal(t, "tx1.0\n", out)
}

func TestStatsAndReindex(t *testing.T) {
	dir := t.TempDir()
	for i, txid := range []string{"a", "b", "c"} {
		mustExecute(t, dir, "admit", txid+".0", "--script", encodeToken(t, dir, hexHash(txid), hexHash(string(rune('x'+i)))))
	}

	out := mustExecute(t, dir, "--format", "json", "stats")
	var stats Stats
	decodeData(t, out, &stats)
	assert.Equal(t, ump.DefaultTopic, stats.Topic)
	assert.Equal(t, "badger", stats.Backend)
	assert.Equal(t, 3, stats.Records)
	assert.NotEmpty(t, stats.Path)

	out = mustExecute(t, dir, "reindex")
	assert.Equal(t, "Reindexed 3 records\n", out)

	out = mustExecute(t, dir, "lookup", "--presentation-hash", hexHash("b"))
	assert.Equal(t, "b.0\n", out)
}

func TestTopicsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	ph := hexHash("p")
	script := encodeToken(t, dir, ph, hexHash("r"))

	mustExecute(t, dir, "admit", "tx1.0", "--script", script)
	mustExecute(t, dir, "--topic", "tm_other", "admit", "tx2.0", "--script", script, "--on-topic", "tm_other")

	assert.Equal(t, "tx1.0\n", mustExecute(t, dir, "lookup", "--presentation-hash", ph))
	assert.Equal(t, "tx2.0\n", mustExecute(t, dir, "--topic", "tm_other", "lookup", "--presentation-hash", ph))
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	script := encodeToken(t, dir, hexHash("p"), hexHash("r"))
	mustExecute(t, dir, "admit", "tx1.0", "--script", script)
	mustExecute(t, dir, "--topic", "tm_other", "admit", "tx2.0", "--script", script, "--on-topic", "tm_other")

	_, err := execute(t, dir, "reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out := mustExecute(t, dir, "reset", "--yes")
	assert.Equal(t, "Deleted 1 records for topic tm_users\n", out)
	assert.Equal(t, "No matching output\n", mustExecute(t, dir, "lookup", "--outpoint", "tx1.0"))

	// Other topics keep their records, and the reset index accepts new ones.
	assert.Equal(t, "tx2.0\n", mustExecute(t, dir, "--topic", "tm_other", "lookup", "--outpoint", "tx2.0"))
	mustExecute(t, dir, "admit", "tx3.0", "--script", script)
	assert.Equal(t, "tx3.0\n", mustExecute(t, dir, "lookup", "--recovery-hash", hexHash("r")))
}

func TestSQLiteBackend(t *testing.T) {
	dir := t.TempDir()
	ph := hexHash("p")
	mustExecute(t, dir, "--backend", "sqlite", "admit", "tx9.3", "--script", encodeToken(t, dir, ph, hexHash("r")))

	out := mustExecute(t, dir, "--backend", "sqlite", "lookup", "--presentation-hash", ph)
	assert.Equal(t, "tx9.3\n", out)

	out = mustExecute(t, dir, "--backend", "sqlite", "stats")
	assert.Contains(t, out, "Backend:  sqlite")
	assert.Contains(t, out, "Records:  1")
}

func TestEncode(t *testing.T) {
	dir := t.TempDir()
	ph, rh := hexHash("p"), hexHash("r")

	t.Run("with pubkey", func(t *testing.T) {
		priv, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		pub := hex.EncodeToString(priv.PubKey().SerializeCompressed())

		out := mustExecute(t, dir, "--format", "json", "encode", "--presentation-hash", ph, "--recovery-hash", rh, "--pubkey", pub)
		var res EncodeResult
		decodeData(t, out, &res)
		assert.Equal(t, pub, res.PubKey)
		assert.Empty(t, res.PrivKey)
		assert.Contains(t, res.Script, pub)
	})

	t.Run("bad pubkey", func(t *testing.T) {
		_, err := execute(t, dir, "encode", "--presentation-hash", ph, "--recovery-hash", rh, "--pubkey", "05"+ph)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid public key")
	})

	t.Run("bad hash", func(t *testing.T) {
		_, err := execute(t, dir, "encode", "--presentation-hash", "xyz", "--recovery-hash", rh)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid presentation hash")
	})

	t.Run("missing hash", func(t *testing.T) {
		_, err := execute(t, dir, "encode", "--presentation-hash", ph)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "required flag")
	})

	t.Run("extra fields", func(t *testing.T) {
		out := mustExecute(t, dir, "--format", "json", "encode", "--presentation-hash", ph, "--recovery-hash", rh,
			"--field", "01", "--field", "0a0b0c", "--field", "", "--field", "ff", "--field", "00", "--field", "10", "--field", "cafe")
		var res EncodeResult
		decodeData(t, out, &res)
		mustExecute(t, dir, "admit", "f.1", "--script", res.Script)
		assert.Equal(t, "f.1\n", mustExecute(t, dir, "lookup", "--recovery-hash", rh))
	})
}

func TestDocsAndMetadata(t *testing.T) {
	dir := t.TempDir()

	out := mustExecute(t, dir, "docs")
	assert.Contains(t, out, "presentationHash")
	assert.Contains(t, out, ump.DefaultTopic)

	out = mustExecute(t, dir, "metadata")
	assert.Contains(t, out, "UMP Lookup Service")

	out = mustExecute(t, dir, "--format", "json", "metadata")
	assert.Contains(t, out, `"status": "ok"`)
	assert.Contains(t, out, "UMP Lookup Service")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", nil)))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}
