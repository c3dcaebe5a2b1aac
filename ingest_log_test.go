package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func writeLogFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ckpool.log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLogLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open log for append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func logStamp(ts time.Time) string {
	return ts.UTC().Format("2006-01-02 15:04:05")
}

func countRows(t *testing.T, store *stateStore, table string) int {
	t.Helper()
	var n int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestIngestLogEndToEndDropClearsActiveWorkers(t *testing.T) {
	now := time.Now().UTC()
	lines := []string{
		"[" + logStamp(now.Add(-4*time.Minute)) + "] Authorised client 4 127.0.0.1 worker " +
			testWalletA + ".rig1 as user " + testWalletA,
		"[" + logStamp(now.Add(-3*time.Minute)) + "] Share accepted from " +
			testWalletA + ".rig1 at diff 1000",
		"[" + logStamp(now.Add(-2*time.Minute)) + "] Dropped client 4 127.0.0.1 user " +
			testWalletA + " worker " + testWalletA + ".rig1",
	}
	path := writeLogFile(t, lines...)

	store := newTestStore(t)
	applied, err := store.IngestLog(path, 0, 5*time.Minute)
	if err != nil {
		t.Fatalf("IngestLog: %v", err)
	}
	if applied != 3 {
		t.Fatalf("applied = %d, want 3", applied)
	}
	if n := countRows(t, store, "shares"); n != 1 {
		t.Fatalf("shares = %d, want 1", n)
	}

	view := newPoolView(store, path, "", 5*time.Minute)
	snap := view.Snapshot()
	if len(snap.Users) != 1 {
		t.Fatalf("users = %d, want the dropped wallet to still appear", len(snap.Users))
	}
	row := snap.Users[0]
	if row.Wallet != testWalletA {
		t.Fatalf("wallet = %q, want %q", row.Wallet, testWalletA)
	}
	if row.ActiveWorkers == nil || len(row.ActiveWorkers) != 0 {
		t.Fatalf("active workers = %v, want empty list after drop", row.ActiveWorkers)
	}
	if row.Workers != 0 {
		t.Fatalf("worker count = %d, want 0", row.Workers)
	}
	if row.Hashrate1m != hashrateUnknown {
		t.Fatalf("hashrate1m = %q, want %q placeholder", row.Hashrate1m, hashrateUnknown)
	}
}

func TestIngestLogReplayIsIdempotentExceptShares(t *testing.T) {
	lines := []string{
		`[2024-05-01 12:00:00] Authorised client 4 127.0.0.1 worker ` + testWalletA + `.rig1 as user ` + testWalletA,
		`[2024-05-01 12:00:05] User ` + testWalletA + ` {"hashrate1m": "1T", "workers": 1, "shares": 10}`,
		`[2024-05-01 12:01:00] Share accepted from ` + testWalletA + `.rig1 at diff 1000`,
	}
	path := writeLogFile(t, lines...)
	store := newTestStore(t)

	applied, err := store.IngestLog(path, 0, 5*time.Minute)
	if err != nil {
		t.Fatalf("first IngestLog: %v", err)
	}
	if applied != 3 {
		t.Fatalf("applied = %d, want 3", applied)
	}

	// Cursor should sit at EOF; a second pass applies nothing.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat log: %v", err)
	}
	saved, ok, err := getMeta(store.db, cursorKey(path))
	if err != nil || !ok {
		t.Fatalf("cursor missing: ok=%v err=%v", ok, err)
	}
	if saved != strconv.FormatInt(info.Size(), 10) {
		t.Fatalf("cursor = %s, want %d", saved, info.Size())
	}
	applied, err = store.IngestLog(path, 0, 5*time.Minute)
	if err != nil || applied != 0 {
		t.Fatalf("resume pass = (%d, %v), want (0, nil)", applied, err)
	}

	// Full replay from the start repeats only upserts, apart from the
	// append-only share log.
	if err := setMeta(store.db, cursorKey(path), "0"); err != nil {
		t.Fatalf("reset cursor: %v", err)
	}
	applied, err = store.IngestLog(path, 0, 5*time.Minute)
	if err != nil || applied != 3 {
		t.Fatalf("replay pass = (%d, %v), want (3, nil)", applied, err)
	}
	if n := countRows(t, store, "user_stats"); n != 1 {
		t.Fatalf("user_stats = %d, want 1", n)
	}
	if n := countRows(t, store, "workers_seen"); n != 1 {
		t.Fatalf("workers_seen = %d, want 1", n)
	}
	if n := countRows(t, store, "shares"); n != 2 {
		t.Fatalf("shares = %d, want 2 after replay", n)
	}
}

func TestIngestLogResumesAcrossAppends(t *testing.T) {
	first := []string{
		`[2024-05-01 12:00:00] Pool: {"hashrate1m": "12.3T", "runtime": 3600}`,
		`[2024-05-01 12:00:05] User ` + testWalletA + ` {"hashrate1m": "1T", "workers": 1, "shares": 10}`,
	}
	second := []string{
		`[2024-05-01 12:05:00] Share accepted from ` + testWalletA + `.rig1 at diff 1000`,
		`[2024-05-01 12:05:05] User ` + testWalletA + ` {"hashrate1m": "2T", "workers": 1, "shares": 20}`,
	}

	path := writeLogFile(t, first...)
	chunked := newTestStore(t)
	if _, err := chunked.IngestLog(path, 0, 5*time.Minute); err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	appendLogLines(t, path, second...)
	applied, err := chunked.IngestLog(path, 0, 5*time.Minute)
	if err != nil {
		t.Fatalf("second chunk: %v", err)
	}
	if applied != 2 {
		t.Fatalf("second chunk applied = %d, want only the appended lines", applied)
	}

	oneShot := newTestStore(t)
	if _, err := oneShot.IngestLog(path, 0, 5*time.Minute); err != nil {
		t.Fatalf("one-shot ingest: %v", err)
	}

	for _, store := range []*stateStore{chunked, oneShot} {
		var h1 string
		var shares int64
		err := store.db.QueryRow(
			"SELECT hashrate1m, shares FROM user_stats WHERE address=?", testWalletA,
		).Scan(&h1, &shares)
		if err != nil {
			t.Fatalf("user_stats row: %v", err)
		}
		if h1 != "2T" || shares != 20 {
			t.Fatalf("user_stats = (%q, %d), want latest snapshot (2T, 20)", h1, shares)
		}
		if n := countRows(t, store, "shares"); n != 1 {
			t.Fatalf("shares = %d, want 1", n)
		}
		if n := countRows(t, store, "pool_metrics"); n != 1 {
			t.Fatalf("pool_metrics = %d, want 1", n)
		}
	}
}

func TestIngestLogSkipsMalformedPoolLine(t *testing.T) {
	lines := []string{
		`[2024-05-01 12:00:00] Pool: {"hashrate1m": "12.3T"}`,
		`[2024-05-01 12:00:10] Pool: {broken payload`,
		`[2024-05-01 12:00:20] completely unrelated chatter`,
		`[2024-05-01 12:00:30] User ` + testWalletA + ` {"hashrate1m": "1T"}`,
	}
	path := writeLogFile(t, lines...)
	store := newTestStore(t)

	applied, err := store.IngestLog(path, 0, 5*time.Minute)
	if err != nil {
		t.Fatalf("IngestLog: %v", err)
	}
	if applied != 2 {
		t.Fatalf("applied = %d, want the two well-formed lines", applied)
	}
	if n := countRows(t, store, "pool_metrics"); n != 1 {
		t.Fatalf("pool_metrics = %d, want 1", n)
	}

	// The cursor still advances past the bad lines.
	info, _ := os.Stat(path)
	saved, ok, err := getMeta(store.db, cursorKey(path))
	if err != nil || !ok || saved != strconv.FormatInt(info.Size(), 10) {
		t.Fatalf("cursor = (%q, %v, %v), want full file size %d", saved, ok, err, info.Size())
	}
}

func TestUserStatsLineBumpsWorkerLiveness(t *testing.T) {
	lines := []string{
		`[2024-05-01 12:00:00] Authorised client 4 127.0.0.1 worker ` + testWalletA + `.rig1 as user ` + testWalletA,
		`[2024-05-01 12:03:00] User ` + testWalletA + ` {"hashrate1m": "1T", "workers": 1}`,
	}
	path := writeLogFile(t, lines...)
	store := newTestStore(t)
	if _, err := store.IngestLog(path, 0, 5*time.Minute); err != nil {
		t.Fatalf("IngestLog: %v", err)
	}

	var lastSeen int64
	var active int
	err := store.db.QueryRow(
		"SELECT last_seen, active FROM workers_seen WHERE wallet=? AND worker=?",
		testWalletA, "rig1",
	).Scan(&lastSeen, &active)
	if err != nil {
		t.Fatalf("workers_seen row: %v", err)
	}
	if want := testEpoch("2024-05-01 12:03:00"); lastSeen != want {
		t.Fatalf("last_seen = %d, want bump to %d from the user snapshot", lastSeen, want)
	}
	if active != 1 {
		t.Fatalf("active = %d, want 1", active)
	}
}

func TestIngestLogMissingFile(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.IngestLog(filepath.Join(t.TempDir(), "absent.log"), 0, time.Minute); err == nil {
		t.Fatalf("expected error for missing log file")
	}
}
