package main

import (
	"regexp"
	"strconv"
	"strings"
)

// Line dialect matchers. ckpool's log is free text with several
// inconsistent phrasings, and truncated lines can merge adjacent fields,
// so matching is structural first and the extracted identity is
// sanitized afterwards. Dialects are tried in a fixed precedence order
// and the first structural match wins.

const (
	// Bare wallets or truncated "prefix..." forms; truncation is handled
	// downstream by the worker-name sanitizer.
	addrPattern   = `(?:[13][a-km-zA-HJ-NP-Z1-9]{5,}|[tb]?c1[0-9ac-hj-np-z]{5,})(?:\.\.\.)?`
	workerPattern = `[A-Za-z0-9_\-.]{1,64}`
	bracketTSOpt  = `(?:\[([\d\-:. ]+)\]\s*)?`

	// unknownWorker replaces any worker-name candidate that cannot be
	// trusted (empty, truncated, oversized, or equal to its wallet).
	unknownWorker = "X"

	workerNameMaxLen  = 64
	truncationMarker  = "..."
	shareFragmentOpt  = `(?:\.` + workerPattern + `)?`
	shareDiffPattern  = `(\d+(?:/\d+)?)`
	clientWorkerChunk = `client\s+\d+\s+\S+\s+`
)

var (
	poolLineRE = regexp.MustCompile(`(?s)^` + bracketTSOpt + `Pool:\s*(\{.*\})\s*$`)

	userLineRE = regexp.MustCompile(`(?i)^` + bracketTSOpt +
		`User\s+(` + addrPattern + `)\s*:?\s*(\{.*\})\s*$`)

	authLineRE = regexp.MustCompile(`(?i)^` + bracketTSOpt +
		`Authorised\s+` + clientWorkerChunk + `worker\s+(` + addrPattern + `)\.(` + workerPattern + `)\s+as\s+user\s+` + addrPattern + `\b.*$`)
	authWalletOnlyRE = regexp.MustCompile(`(?i)^` + bracketTSOpt +
		`Authorised\s+` + clientWorkerChunk + `worker\s+(` + addrPattern + `)\s+as\s+user\s+` + addrPattern + `\b.*$`)

	dropLineRE = regexp.MustCompile(`(?i)^` + bracketTSOpt +
		`Dropped\s+` + clientWorkerChunk + `user\s+` + addrPattern + `\s+worker\s+(` + addrPattern + `)\.(` + workerPattern + `)\b.*$`)
	dropWalletOnlyRE = regexp.MustCompile(`(?i)^` + bracketTSOpt +
		`Dropped\s+` + clientWorkerChunk + `user\s+` + addrPattern + `\s+worker\s+(` + addrPattern + `)\b.*$`)

	shareLineREs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^` + bracketTSOpt +
			`Share\s+(?:accepted|rejected)\s+from\s+(` + addrPattern + shareFragmentOpt + `)\s+(?:at\s+)?diff\s+` + shareDiffPattern + `.*$`),
		regexp.MustCompile(`(?i)^` + bracketTSOpt +
			`(?:Accepted|Rejected)\s+share\s+from\s+(` + addrPattern + shareFragmentOpt + `)\s+(?:at\s+)?diff\s+` + shareDiffPattern + `.*$`),
	}

	workerNameRE = regexp.MustCompile(`^` + workerPattern + `$`)
)

// decodeLogLine classifies one raw log line into a typed event. It
// returns (nil, false) for anything unrecognized, including structurally
// matching pool/user lines whose JSON payload fails to parse: a partial
// match is never accepted.
func decodeLogLine(line string) (lineEvent, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}
	if ev, ok := parsePoolStatusLine(line); ok {
		return ev, true
	}
	if ev, ok := parseUserStatsLine(line); ok {
		return ev, true
	}
	if ev, ok := parseAuthorisedLine(line); ok {
		return ev, true
	}
	if ev, ok := parseDroppedLine(line); ok {
		return ev, true
	}
	if ev, ok := parseShareLine(line); ok {
		return ev, true
	}
	return nil, false
}

func parsePoolStatusLine(line string) (poolStatusEvent, bool) {
	m := poolLineRE.FindStringSubmatch(line)
	if m == nil {
		return poolStatusEvent{}, false
	}
	var payload poolStatusPayload
	if err := fastJSONUnmarshal([]byte(m[2]), &payload); err != nil {
		return poolStatusEvent{}, false
	}
	return poolStatusEvent{Ts: parseBracketTimestamp(m[1]), Payload: payload}, true
}

func parseUserStatsLine(line string) (userStatsEvent, bool) {
	m := userLineRE.FindStringSubmatch(line)
	if m == nil {
		return userStatsEvent{}, false
	}
	var payload userStatsPayload
	if err := fastJSONUnmarshal([]byte(m[3]), &payload); err != nil {
		return userStatsEvent{}, false
	}
	return userStatsEvent{
		Ts:      parseBracketTimestamp(m[1]),
		Address: m[2],
		Payload: payload,
	}, true
}

func parseAuthorisedLine(line string) (workerAuthEvent, bool) {
	if m := authLineRE.FindStringSubmatch(line); m != nil {
		return workerAuthEvent{
			Ts:     parseBracketTimestamp(m[1]),
			Wallet: m[2],
			Worker: sanitizeWorkerIdentity(m[2], m[3]),
		}, true
	}
	if m := authWalletOnlyRE.FindStringSubmatch(line); m != nil {
		return workerAuthEvent{
			Ts:     parseBracketTimestamp(m[1]),
			Wallet: m[2],
			Worker: unknownWorker,
		}, true
	}
	return workerAuthEvent{}, false
}

func parseDroppedLine(line string) (workerDropEvent, bool) {
	if m := dropLineRE.FindStringSubmatch(line); m != nil {
		return workerDropEvent{
			Ts:     parseBracketTimestamp(m[1]),
			Wallet: m[2],
			Worker: sanitizeWorkerIdentity(m[2], m[3]),
		}, true
	}
	if m := dropWalletOnlyRE.FindStringSubmatch(line); m != nil {
		return workerDropEvent{
			Ts:     parseBracketTimestamp(m[1]),
			Wallet: m[2],
			Worker: unknownWorker,
		}, true
	}
	return workerDropEvent{}, false
}

func parseShareLine(line string) (shareEvent, bool) {
	for _, re := range shareLineREs {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		address, worker := splitAddressWorker(m[2])
		status := shareRejected
		if strings.Contains(strings.ToLower(line), shareAccepted) {
			status = shareAccepted
		}
		return shareEvent{
			Ts:         parseBracketTimestamp(m[1]),
			Status:     status,
			Address:    address,
			Worker:     worker,
			RawDiff:    m[3],
			ScaledDiff: scaleShareDiff(m[3]),
		}, true
	}
	return shareEvent{}, false
}

// sanitizeWorkerIdentity normalizes a worker-name candidate extracted
// next to its wallet. The truncation marker anywhere in either token
// means the upstream line elided or merged fields, so the name cannot be
// trusted and the sentinel is used instead.
func sanitizeWorkerIdentity(wallet, worker string) string {
	if strings.Contains(wallet, truncationMarker) || strings.Contains(worker, truncationMarker) {
		return unknownWorker
	}
	return cleanWorkerName(worker, wallet)
}

func cleanWorkerName(worker, wallet string) string {
	w := strings.TrimSpace(worker)
	w = strings.Trim(w, ". ")
	if w == "" || w == wallet || strings.Contains(w, truncationMarker) || len(w) > workerNameMaxLen {
		return unknownWorker
	}
	if !workerNameRE.MatchString(w) {
		return unknownWorker
	}
	return w
}

// splitAddressWorker splits a composite "wallet.worker" identity at the
// first dot. A bare wallet yields an empty worker fragment.
func splitAddressWorker(s string) (string, string) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// scaleShareDiff evaluates a raw difficulty token; "a/b" fractions scale
// to the real quotient. Returns nil when the token is not numeric.
func scaleShareDiff(raw string) *float64 {
	if raw == "" {
		return nil
	}
	if a, b, ok := strings.Cut(raw, "/"); ok {
		num, err1 := strconv.ParseFloat(a, 64)
		den, err2 := strconv.ParseFloat(b, 64)
		if err1 != nil || err2 != nil || den == 0 {
			return nil
		}
		v := num / den
		return &v
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}
