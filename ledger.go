package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Block-reward ledger ingestion. Ledgers arrive as CSV, JSON arrays, or
// newline-delimited JSON; each record upserts by block height and fills
// only columns that are still null, so partial ledgers from different
// exporters converge instead of clobbering each other.

type blockReward struct {
	Height    int64
	Hash      *string
	Ts        *int64
	RewardBTC *float64
	Txid      *string
	Address   *string
}

// BlockRewardRow is one credited block returned by WalletRewards.
type BlockRewardRow struct {
	Height    int64    `json:"height"`
	Hash      string   `json:"hash"`
	Ts        int64    `json:"ts"`
	RewardBTC *float64 `json:"reward_btc"`
	Txid      string   `json:"txid"`
}

// IngestLedger loads a block-reward ledger, dispatching on the file
// extension. An unrecognized extension is a hard failure; there is no
// safe partial behavior for a format we cannot read.
func (s *stateStore) IngestLedger(path string) (int, error) {
	var records []blockReward
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		records, err = readCSVLedger(path)
	case ".jsonl", ".ndjson", ".jsonlines":
		records, err = readJSONLLedger(path)
	case ".json":
		records, err = readJSONLedger(path)
	default:
		return 0, fmt.Errorf("unsupported ledger format %q", ext)
	}
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	n := 0
	for _, rec := range records {
		if err := upsertBlockReward(tx, rec); err != nil {
			return n, err
		}
		n++
	}
	if err := commitRetry(tx); err != nil {
		return n, err
	}
	return n, nil
}

// upsertBlockReward fills only columns that are still null; a value
// already present is never replaced by a later ledger.
func upsertBlockReward(conn dbConn, rec blockReward) error {
	_, err := execRetry(conn, `
		INSERT INTO blocks(height, blockhash, ts, reward_btc, txid, address)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(height) DO UPDATE SET
			blockhash=COALESCE(blocks.blockhash, excluded.blockhash),
			ts=COALESCE(blocks.ts, excluded.ts),
			reward_btc=COALESCE(blocks.reward_btc, excluded.reward_btc),
			txid=COALESCE(blocks.txid, excluded.txid),
			address=COALESCE(blocks.address, excluded.address)`,
		rec.Height, rec.Hash, rec.Ts, rec.RewardBTC, rec.Txid, rec.Address)
	return err
}

// WalletRewards lists blocks credited to an address, newest first.
func (s *stateStore) WalletRewards(address string) ([]BlockRewardRow, error) {
	rows, err := s.db.Query(
		`SELECT height, blockhash, ts, reward_btc, txid FROM blocks
		 WHERE address=? ORDER BY ts DESC`,
		address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlockRewardRow
	for rows.Next() {
		var (
			row    BlockRewardRow
			hash   *string
			ts     *int64
			reward *float64
			txid   *string
		)
		if err := rows.Scan(&row.Height, &hash, &ts, &reward, &txid); err != nil {
			return nil, err
		}
		if hash != nil {
			row.Hash = *hash
		}
		if ts != nil {
			row.Ts = *ts
		}
		row.RewardBTC = reward
		if txid != nil {
			row.Txid = *txid
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// rawLedgerRecord tolerates the field spellings and types seen across
// ledger exporters; numbers may arrive as strings and vice versa.
type rawLedgerRecord struct {
	Height      any     `json:"height"`
	BlockHeight any     `json:"block_height"`
	Hash        *string `json:"hash"`
	BlockHash   *string `json:"blockhash"`
	Time        any     `json:"time"`
	Timestamp   any     `json:"timestamp"`
	RewardBTC   any     `json:"reward_btc"`
	Reward      any     `json:"reward"`
	Txid        *string `json:"txid"`
	Address     *string `json:"address"`
	Miner       *string `json:"miner"`
	Wallet      *string `json:"wallet"`
}

func (r rawLedgerRecord) normalize() blockReward {
	rec := blockReward{
		Height: firstInt64(r.Height, r.BlockHeight),
		Hash:   firstString(r.Hash, r.BlockHash),
		Txid:   r.Txid,
	}
	rec.Address = firstString(r.Address, r.Miner, r.Wallet)
	if ts, ok := anyToEpoch(r.Time); ok {
		rec.Ts = &ts
	} else if ts, ok := anyToEpoch(r.Timestamp); ok {
		rec.Ts = &ts
	}
	if v, ok := anyToFloat(r.RewardBTC); ok {
		rec.RewardBTC = &v
	} else if v, ok := anyToFloat(r.Reward); ok {
		rec.RewardBTC = &v
	}
	return rec
}

func firstString(candidates ...*string) *string {
	for _, c := range candidates {
		if c != nil && *c != "" {
			return c
		}
	}
	return nil
}

func firstInt64(candidates ...any) int64 {
	for _, c := range candidates {
		if v, ok := anyToInt64(c); ok {
			return v
		}
	}
	return 0
}

func anyToInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case nil:
		return 0, false
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func anyToFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func anyToEpoch(v any) (int64, bool) {
	switch v := v.(type) {
	case nil:
		return 0, false
	case float64:
		return normalizeEpoch(int64(v)), true
	case int64:
		return normalizeEpoch(v), true
	case string:
		return parseFlexibleEpoch(v)
	}
	return 0, false
}

func readCSVLedger(path string) ([]blockReward, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(row []string, names ...string) string {
		for _, name := range names {
			if i, ok := col[name]; ok && i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	var records []blockReward
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := blockReward{}
		rec.Height, _ = anyToInt64(field(row, "height", "block_height"))
		if v := field(row, "hash", "blockhash"); v != "" {
			rec.Hash = &v
		}
		if ts, ok := parseFlexibleEpoch(field(row, "time", "timestamp")); ok {
			rec.Ts = &ts
		}
		if v, ok := anyToFloat(field(row, "reward_btc", "reward")); ok {
			rec.RewardBTC = &v
		}
		if v := field(row, "txid"); v != "" {
			rec.Txid = &v
		}
		if v := field(row, "address", "miner", "wallet"); v != "" {
			rec.Address = &v
		}
		records = append(records, rec)
	}
	return records, nil
}

func readJSONLLedger(path string) ([]blockReward, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []blockReward
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw rawLedgerRecord
		if err := fastJSONUnmarshal([]byte(line), &raw); err != nil {
			return nil, err
		}
		records = append(records, raw.normalize())
	}
	return records, scanner.Err()
}

func readJSONLedger(path string) ([]blockReward, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	var raws []rawLedgerRecord
	if strings.HasPrefix(trimmed, "[") {
		if err := fastJSONUnmarshal(data, &raws); err != nil {
			return nil, err
		}
	} else {
		var raw rawLedgerRecord
		if err := fastJSONUnmarshal(data, &raw); err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	records := make([]blockReward, 0, len(raws))
	for _, raw := range raws {
		records = append(records, raw.normalize())
	}
	return records, nil
}
