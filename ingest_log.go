package main

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const cursorKeyPrefix = "log_ingest_cursor:"

// cursorKey derives the meta key holding a log file's resume offset.
func cursorKey(logPath string) string {
	if abs, err := filepath.Abs(logPath); err == nil {
		logPath = abs
	}
	return cursorKeyPrefix + logPath
}

// IngestLog reads the log from fromBytes (0 means "resume from the
// persisted cursor, or the start of the file if none"), applies every
// recognized line to the store, and persists the end offset. All writes
// plus the cursor commit in one transaction, so a crash mid-pass leaves
// the cursor at or before what was applied and replaying already-applied
// lines only repeats idempotent upserts. The exception is the share log,
// which is append-only and may double-record on replay.
//
// A single failed write is logged and skipped; ingestion keeps making
// forward progress past bad records. Returns the number of lines that
// produced a recognized, applied event.
func (s *stateStore) IngestLog(logPath string, fromBytes int64, workerTimeout time.Duration) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	key := cursorKey(logPath)
	if fromBytes == 0 {
		if saved, ok, err := getMeta(tx, key); err == nil && ok {
			if v, err := strconv.ParseInt(saved, 10, 64); err == nil && v > 0 {
				fromBytes = v
			}
		}
	}

	f, err := os.Open(logPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if fromBytes > 0 {
		if _, err := f.Seek(fromBytes, io.SeekStart); err != nil {
			return 0, err
		}
	}

	reader := bufio.NewReaderSize(f, 256<<10)
	pos := fromBytes
	applied := 0
	for {
		chunk, readErr := reader.ReadBytes('\n')
		if len(chunk) > 0 {
			pos += int64(len(chunk))
			line := strings.TrimRight(string(chunk), "\r\n")
			if utf8.ValidString(line) {
				if s.applyLine(tx, line, workerTimeout) {
					applied++
				}
			}
		}
		if readErr != nil {
			// EOF ends the pass; any other read error stops it early with
			// the cursor covering only what was consumed.
			if !errors.Is(readErr, io.EOF) {
				logger.Warn("log read aborted", "path", logPath, "error", readErr)
			}
			break
		}
	}

	if err := setMeta(tx, key, strconv.FormatInt(pos, 10)); err != nil {
		return applied, err
	}
	if err := commitRetry(tx); err != nil {
		return applied, err
	}
	return applied, nil
}

// applyLine classifies one line and applies its store mutation. Reports
// whether a recognized event was applied successfully.
func (s *stateStore) applyLine(conn dbConn, line string, workerTimeout time.Duration) bool {
	ev, ok := decodeLogLine(line)
	if !ok {
		return false
	}

	var err error
	switch ev := ev.(type) {
	case poolStatusEvent:
		err = upsertPoolMetrics(conn, ev)
	case userStatsEvent:
		err = upsertUserStats(conn, ev)
		if err == nil {
			s.refreshWorkerFromUserStats(conn, ev, workerTimeout)
		}
	case workerAuthEvent:
		err = upsertWorkerSeen(conn, ev.Wallet, ev.Worker, ev.Ts, true)
	case workerDropEvent:
		err = upsertWorkerSeen(conn, ev.Wallet, ev.Worker, ev.Ts, false)
	case shareEvent:
		err = insertShare(conn, ev)
		if err == nil && ev.Worker != "" {
			if werr := upsertWorkerSeen(conn, ev.Address, ev.Worker, ev.Ts, true); werr != nil {
				logger.Debug("share worker refresh failed", "wallet", ev.Address, "error", werr)
			}
		}
	default:
		return false
	}

	if err != nil {
		logger.Warn("store write skipped", "error", err)
		return false
	}
	return true
}

// refreshWorkerFromUserStats keeps worker display names alive from user
// snapshot lines. If the snapshot reports any workers, the wallet's most
// recently seen name gets its liveness bumped; if it reports exactly one
// and exactly one name is currently active, that name is refreshed too.
// Both are best-effort and never fail the user-stats write.
func (s *stateStore) refreshWorkerFromUserStats(conn dbConn, ev userStatsEvent, workerTimeout time.Duration) {
	reported := ev.Payload.Workers
	if reported != nil && *reported > 0 {
		if name, ok, err := latestWorkerName(conn, ev.Address); err == nil && ok {
			if err := upsertWorkerSeen(conn, ev.Address, name, ev.Ts, true); err != nil {
				logger.Debug("worker liveness bump failed", "wallet", ev.Address, "error", err)
			}
		}
	}
	if err := refreshSingleWorker(conn, ev.Address, reported, ev.Ts, workerTimeout); err != nil {
		logger.Debug("single worker refresh failed", "wallet", ev.Address, "error", err)
	}
}
