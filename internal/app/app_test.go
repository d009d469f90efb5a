package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jumpfinance/jumpdefi/internal/config"
	"github.com/jumpfinance/jumpdefi/internal/export"
	"github.com/jumpfinance/jumpdefi/internal/finmath"
	"github.com/jumpfinance/jumpdefi/internal/storage"
	"github.com/jumpfinance/jumpdefi/internal/storage/models"
	"github.com/jumpfinance/jumpdefi/internal/types"
)

const feedBody = `[
	{"contract": "jumptoken.jumpfinance.near", "price": "0.006936001638", "symbol": "JUMP"},
	{"contract": "blackdragon.tkn.near", "price": "0.000000031642", "symbol": "BLACKDRAGON"}
]`

const vaultJSON = `{
	"id": 1714000000001,
	"name": "Black Dragon Vault #1",
	"apr": 20856500000,
	"filled_amount": "42913950000000000000000",
	"max_fill_amount": "2500000000000000000000000",
	"min_stake_amount": "1000000000000000000",
	"locked_time_ms": 2419200000,
	"stake_reward_rate": "10000000000000000000000"
}`

const vaultsJSON = `[` + vaultJSON + `, {
	"id": 1713845877248,
	"name": "test vault",
	"apr": 1,
	"filled_amount": "0",
	"max_fill_amount": "1",
	"locked_time_ms": 1
}]`

// newChain serves view calls from a method name to JSON result map.
func newChain(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params struct {
				MethodName string `json:"method_name"`
			} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		body, ok := results[req.Params.MethodName]
		if !ok {
			json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"error": "MethodNotFound"}})
			return
		}
		raw := make([]int, len(body))
		for i := range body {
			raw[i] = int(body[i])
		}
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"result": raw}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newFeed(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(feedBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(feedURL, rpcURL, exportDir string) *config.Config {
	return &config.Config{
		PriceFeedURL:   feedURL,
		NearRPCURL:     rpcURL,
		PriceDelay:     20,
		RequestTimeout: 2000,
		Retries:        0,
		ExportDir:      exportDir,
		LiquidStaking: config.LiquidStakingConfig{
			WrapperToken:    finmath.DefaultWrapperToken,
			UnderlyingToken: finmath.DefaultUnderlyingToken,
			Rate:            "2.57",
		},
		VaultContracts: config.DefaultVaultContracts(),
	}
}

type memStorage struct {
	mu     sync.Mutex
	aprs   []*models.APRSnapshot
	prices []*models.PriceSnapshot
	closed bool
}

func (m *memStorage) SaveAPRSnapshots(_ context.Context, s []*models.APRSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aprs = append(m.aprs, s...)
	return nil
}

func (m *memStorage) SavePriceSnapshots(_ context.Context, s []*models.PriceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = append(m.prices, s...)
	return nil
}

func (m *memStorage) LatestAPR(_ context.Context, contract string, vaultID int64) (*models.APRSnapshot, error) {
	snaps := m.vault(contract, vaultID, time.Time{})
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return snaps[len(snaps)-1], nil
}

func (m *memStorage) APRHistory(_ context.Context, contract string, vaultID int64, since time.Time, limit int) ([]*models.APRSnapshot, error) {
	snaps := m.vault(contract, vaultID, since)
	if len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

// vault returns the snapshots of one vault taken at or after since, oldest
// first.
func (m *memStorage) vault(contract string, vaultID int64, since time.Time) []*models.APRSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.APRSnapshot
	for _, s := range m.aprs {
		if s.Contract == contract && s.VaultID == vaultID && !s.TakenAt.Before(since) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.Before(out[j].TakenAt) })
	return out
}

func (m *memStorage) RunMigrations() error { return nil }

func (m *memStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memStorage) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.aprs), len(m.prices)
}

func newTestApp(t *testing.T, out *bytes.Buffer, st *memStorage) *App {
	t.Helper()
	chain := newChain(t, map[string]string{
		"get_vaults":          vaultsJSON,
		"get_stake_by_id":     `[{"id": 3, "vault_id": 1714000000001, "staked_amount": "1000000000000000000000"}]`,
		"get_vault":           vaultJSON,
		"get_recovery_reward": `"0"`,
	})
	opts := Options{Out: out}
	if st != nil {
		opts.Storage = st
	}
	a, err := New(testConfig(newFeed(t).URL, chain.URL, t.TempDir()), zap.NewNop(), opts)
	require.NoError(t, err)
	return a
}

func TestReportTable(t *testing.T) {
	var out bytes.Buffer
	st := &memStorage{}
	a := newTestApp(t, &out, st)

	path, err := a.Report(context.Background(), ReportOptions{Persist: true})
	require.NoError(t, err)
	assert.Empty(t, path)

	assert.Contains(t, out.String(), "Black Dragon Vault #1")
	assert.Contains(t, out.String(), "28.40%")
	assert.NotContains(t, out.String(), "test vault")

	aprs, prices := st.counts()
	assert.Equal(t, 1, aprs)
	assert.Equal(t, 2, prices)

	require.NoError(t, a.Close())
	assert.True(t, st.closed)
}

func TestReportExport(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(t, &out, nil)
	defer a.Close()

	path, err := a.Report(context.Background(), ReportOptions{Format: export.FormatCSV})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, a.cfg.ExportDir))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "28.40%")

	out.Reset()
	path, err = a.Report(context.Background(), ReportOptions{Format: export.FormatJSON, OutputDir: "-"})
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Contains(t, out.String(), `"apr": "28.40%"`)
}

func TestPositions(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(t, &out, nil)
	defer a.Close()

	require.NoError(t, a.Positions(context.Background(), "alice.near"))
	assert.Contains(t, out.String(), "Positions of alice.near")
	assert.Contains(t, out.String(), "159995068.493151 BLACKDRAGON")
	assert.Contains(t, out.String(), "2.33%")
	assert.NotContains(t, out.String(), "Recoverable rewards")
}

func TestReportFeedDown(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer feed.Close()

	a, err := New(testConfig(feed.URL, "http://127.0.0.1:1", t.TempDir()), zap.NewNop(), Options{Out: &bytes.Buffer{}})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Report(context.Background(), ReportOptions{})
	assert.ErrorContains(t, err, "fetch prices")
}

func TestWatch(t *testing.T) {
	var out bytes.Buffer
	st := &memStorage{}
	a := newTestApp(t, &out, st)
	defer a.Close()

	history := t.TempDir() + "/apr.csv"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx, WatchOptions{HistoryFile: history}) }()

	require.Eventually(t, func() bool {
		aprs, _ := st.counts()
		return aprs >= 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	content, err := os.ReadFile(history)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Black Dragon Vault #1")
}

func snapshot(contract string, apr, fill, status string, at time.Time) *models.APRSnapshot {
	s := &models.APRSnapshot{Contract: contract, VaultID: 7, Status: status, TakenAt: at}
	if apr != "" {
		s.APR = decimal.NewNullDecimal(decimal.RequireFromString(apr))
	}
	if fill != "" {
		s.Fill = decimal.NewNullDecimal(decimal.RequireFromString(fill))
	}
	return s
}

func TestHistory(t *testing.T) {
	start := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	st := &memStorage{aprs: []*models.APRSnapshot{
		snapshot("jumpvault1.near", "28.4", "1.71", "open", start),
		snapshot("jumpvault1.near", "28.49", "2.5", "open", start.Add(time.Hour)),
		snapshot("jumpvault1.near", "", "", "locked", start.Add(2*time.Hour)),
		snapshot("jumpvault2.near", "14.21", "0", "open", start.Add(3*time.Hour)),
	}}
	var out bytes.Buffer
	a := newTestApp(t, &out, st)
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.History(ctx, HistoryOptions{Contract: "jumpvault1.near", VaultID: 7, Since: start.Add(time.Hour)}))
	got := out.String()
	assert.Contains(t, got, "APR history of jumpvault1.near #7")
	assert.NotContains(t, got, "2024-05-02 09:00")
	assert.Contains(t, got, "2024-05-02 10:00")
	assert.Contains(t, got, "28.49%, fill 2.50%, open")
	assert.Contains(t, got, "-, fill -%, locked")
	assert.NotContains(t, got, "14.21%")

	out.Reset()
	require.NoError(t, a.History(ctx, HistoryOptions{Contract: "jumpvault1.near", VaultID: 7, Since: start, Limit: 1}))
	assert.Contains(t, out.String(), "28.40%, fill 1.71%, open")
	assert.NotContains(t, out.String(), "28.49%")

	out.Reset()
	require.NoError(t, a.History(ctx, HistoryOptions{Contract: "jumpvault1.near", VaultID: 7, Since: start.Add(5 * time.Hour)}))
	assert.Contains(t, out.String(), "latest before 2024-05-02 14:00")
	assert.Contains(t, out.String(), "2024-05-02 11:00")

	out.Reset()
	require.NoError(t, a.History(ctx, HistoryOptions{Contract: "jumpvault1.near", VaultID: 99, Since: start}))
	assert.Contains(t, out.String(), "none")
}

func TestHistoryWithoutStorage(t *testing.T) {
	a := newTestApp(t, &bytes.Buffer{}, nil)
	defer a.Close()

	err := a.History(context.Background(), HistoryOptions{Contract: "jumpvault1.near", VaultID: 7})
	assert.ErrorIs(t, err, ErrNoStorage)
}

func TestCloseLoggedReportsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	a := &App{logger: zap.New(core)}

	a.closeLogged("history", CloseFunc(func() error { return nil }))
	assert.Zero(t, logs.Len())

	a.closeLogged("history", CloseFunc(func() error { return errors.New("disk full") }))
	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "history", entries[0].ContextMap()["component"])
	assert.Equal(t, "disk full", entries[0].ContextMap()["error"])
}

func TestCalculateAPR(t *testing.T) {
	xJump := types.TokenRef{ID: finmath.DefaultWrapperToken, Name: "xJUMP", Decimals: 18}
	in := APRInput{
		StakeToken:  xJump,
		RewardToken: types.TokenRef{ID: "blackdragon.tkn.near", Name: "BLACKDRAGON", Decimals: 24},
		APR:         "20856500000",
		MaxFill:     "2500000000000000000000000",
		Filled:      "42913950000000000000000",
		Lock:        28 * 24 * time.Hour,
		StakePrice:  "0.006936001638",
		RewardPrice: "0.000000031642",
		Staked:      "1000000000000000000000",
		RewardRate:  "10000000000000000000000",
	}

	got, err := CalculateAPR(finmath.DefaultLiquidStaking(), in)
	require.NoError(t, err)
	// the stake price is taken as the xJUMP price itself
	assert.Equal(t, [][2]string{
		{"APR", "72.99%"},
		{"Fill", "1.71%"},
		{"Lock", "28 days"},
		{"Estimated reward", "159995068.493151 BLACKDRAGON"},
	}, got)

	in.RewardPrice = ""
	in.Staked = ""
	got, err = CalculateAPR(finmath.DefaultLiquidStaking(), in)
	require.NoError(t, err)
	assert.Equal(t, [2]string{"APR", finmath.Unavailable}, got[0])
	assert.Equal(t, [2]string{"Missing prices", "[blackdragon.tkn.near]"}, got[3])

	in.MaxFill = "lots"
	_, err = CalculateAPR(finmath.DefaultLiquidStaking(), in)
	assert.ErrorIs(t, err, types.ErrInvalidVault)
}

func TestCalculateAPRReadableAmounts(t *testing.T) {
	xJump := types.TokenRef{ID: finmath.DefaultWrapperToken, Name: "xJUMP", Decimals: 18}
	in := APRInput{
		StakeToken:  xJump,
		RewardToken: types.TokenRef{ID: "blackdragon.tkn.near", Name: "BLACKDRAGON", Decimals: 24},
		APR:         "20856500000",
		MaxFill:     "2.5e6",
		Filled:      "42913.95",
		Lock:        28 * 24 * time.Hour,
		StakePrice:  "0.006936001638",
		RewardPrice: "3.1642e-8",
		Staked:      "1000",
		RewardRate:  "10000000000000000000000",
		Readable:    true,
	}

	got, err := CalculateAPR(finmath.DefaultLiquidStaking(), in)
	require.NoError(t, err)
	assert.Equal(t, [][2]string{
		{"APR", "72.99%"},
		{"Fill", "1.71%"},
		{"Lock", "28 days"},
		{"Estimated reward", "159995068.493151 BLACKDRAGON"},
	}, got)

	in.Filled = "-5"
	_, err = CalculateAPR(finmath.DefaultLiquidStaking(), in)
	assert.ErrorIs(t, err, finmath.ErrInvalidAmount)
	assert.ErrorContains(t, err, "filled")

	in.Filled = "0"
	in.StakePrice = "cheap"
	_, err = CalculateAPR(finmath.DefaultLiquidStaking(), in)
	assert.ErrorContains(t, err, "price of "+finmath.DefaultWrapperToken)
}

func TestShutdownOrderAndErrors(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop(), time.Second)
	var order []string
	boom := errors.New("boom")
	sh.AddFunc("first", func() error { order = append(order, "first"); return nil })
	sh.AddFunc("second", func() error { order = append(order, "second"); return boom })

	err := sh.Shutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"second", "first"}, order)

	// a second call has nothing left to close
	assert.NoError(t, sh.Shutdown(context.Background()))
}

func TestShutdownTimeout(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop(), 20*time.Millisecond)
	block := make(chan struct{})
	defer close(block)
	sh.AddFunc("stuck", func() error { <-block; return nil })

	err := sh.Shutdown(context.Background())
	assert.ErrorContains(t, err, "stuck: shutdown timeout")
}
