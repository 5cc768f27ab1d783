package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"virtual-trader/internal/auth"
	"virtual-trader/internal/models"
)

const thesis = "Breakout above the 200 day average on strong volume, target ten percent."

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(zerolog.Nop())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", dir}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func TestVersion(t *testing.T) {
	out := mustRun(t, t.TempDir(), "version", "--json")
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatal(err)
	}
	if v["version"] != Version {
		t.Errorf("version = %q", v["version"])
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "super-secret-signing-key")
	out := mustRun(t, t.TempDir(), "config", "show", "--json")
	if strings.Contains(out, "super-secret-signing-key") {
		t.Error("config show leaked the JWT secret")
	}
}

func TestTradeWorkflow(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "quotes", "set", "tcs", "2500", "--name", "Tata Consultancy")

	out := mustRun(t, dir, "trade", "buy", "TCS", "10", "--user", "alice", "--reason", thesis, "--json")
	var res models.ExecutionResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Trade.Symbol != "TCS" || !res.NewBalance.Equal(decimal.NewFromInt(75000)) {
		t.Errorf("result = %+v", res)
	}

	out = mustRun(t, dir, "portfolio", "--user", "alice", "--json")
	var p models.Portfolio
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatal(err)
	}
	if len(p.Holdings) != 1 || p.Holdings[0].Quantity != 10 {
		t.Errorf("portfolio = %+v", p)
	}

	mustRun(t, dir, "quotes", "set", "TCS", "2600")
	out = mustRun(t, dir, "trade", "sell", "TCS", "4", "--user", "alice", "--reason", thesis, "--json")
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Trade.RealizedPL == nil || !res.Trade.RealizedPL.Equal(decimal.NewFromInt(400)) {
		t.Errorf("realized = %v", res.Trade.RealizedPL)
	}

	out = mustRun(t, dir, "trades", "export", "--user", "alice")
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 3 {
		t.Errorf("csv lines = %d\n%s", len(lines), out)
	}

	out = mustRun(t, dir, "stats", "--user", "alice", "--json")
	var stats models.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalTrades != 2 || stats.ProfitableTrades != 1 {
		t.Errorf("stats = %+v", stats)
	}

	mustRun(t, dir, "levels", "evaluate", "--json")
}

func TestTradeRejectsShortThesis(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "quotes", "set", "INFY", "1500")

	if _, err := run(t, dir, "trade", "buy", "INFY", "1", "--user", "bob", "--reason", "hunch"); err == nil {
		t.Fatal("short thesis should be rejected")
	}
	if _, err := run(t, dir, "trade", "buy", "INFY", "ten", "--user", "bob", "--reason", thesis); err == nil {
		t.Fatal("non-numeric quantity should be rejected")
	}
	out := mustRun(t, dir, "account", "show", "--user", "bob", "--json")
	var a models.Account
	if err := json.Unmarshal([]byte(out), &a); err != nil {
		t.Fatal(err)
	}
	if a.TotalTrades != 0 || !a.Balance.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("account = %+v", a)
	}
}

func TestTokenIssue(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JWT_SECRET", "")
	if _, err := run(t, dir, "token", "issue", "--user", "carol"); err == nil {
		t.Fatal("token issue without a secret should fail")
	}

	t.Setenv("JWT_SECRET", "cli-test-secret-0123456789")
	out := mustRun(t, dir, "token", "issue", "--user", "carol")
	user, err := auth.NewVerifier("cli-test-secret-0123456789", "virtual-trader").ParseToken(strings.TrimSpace(out))
	if err != nil || user != "carol" {
		t.Errorf("ParseToken = %q, %v", user, err)
	}
}
