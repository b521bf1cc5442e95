package feed

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hyperscope/fillsync/internal/domain"
)

// requiredColumns must all be present in the CSV header. The remaining feed
// columns (specialTradeType, tif, counterparty, closedPnl, twapId,
// builderFee) are optional and may be absent in older snapshots.
var requiredColumns = []string{"time", "user", "coin", "side", "px", "sz", "crossed", "isTrigger"}

// ParseStats carries observability counters from one parse call. They signal
// upstream re-emission anomalies; they are not a correctness surface.
type ParseStats struct {
	Rows          int
	DuplicateRows int // rows assigned a sequence number > 1
	MaxSequence   int
}

// ParseFills turns one day's decompressed CSV text into canonical Fill
// records. Rows are processed in file order; each row gets a content hash
// over its raw fields (names sorted, so the hash is independent of column
// ordering) and a 1-based sequence number per hash value, scoped to this
// single call. Empty input yields an empty slice.
//
// A malformed header or row aborts the whole file: partially ingesting a
// file would leave that date's sequence numbering inconsistent.
func ParseFills(csvText, dateStr string) ([]domain.Fill, ParseStats, error) {
	var stats ParseStats

	if strings.TrimSpace(csvText) == "" {
		return nil, stats, nil
	}

	r := csv.NewReader(strings.NewReader(csvText))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("%w: reading header: %v", domain.ErrParse, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[name] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, stats, fmt.Errorf("%w: missing required column %q", domain.ErrParse, col)
		}
	}

	var fills []domain.Fill
	seqByHash := make(map[string]int)

	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("%w: line %d: %v", domain.ErrParse, line, err)
		}

		raw := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				raw[name] = strings.TrimSpace(record[i])
			}
		}

		fill, err := buildFill(raw, dateStr)
		if err != nil {
			return nil, stats, fmt.Errorf("%w: line %d: %v", domain.ErrParse, line, err)
		}

		hash := rowHash(raw)
		seqByHash[hash]++
		seq := seqByHash[hash]

		fill.OriginalDataHash = hash
		fill.SequenceNumber = seq

		if seq > 1 {
			stats.DuplicateRows++
		}
		if seq > stats.MaxSequence {
			stats.MaxSequence = seq
		}

		fills = append(fills, fill)
	}

	stats.Rows = len(fills)
	return fills, stats, nil
}

// rowHash computes the deterministic content hash of one raw row. Field
// names are sorted before hashing so the result does not depend on the
// column order of the source file. Sequence metadata never feeds the hash.
func rowHash(raw map[string]string) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(raw[k]))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// buildFill normalizes one raw row into a Fill. Addresses are lower-cased,
// numerics parsed as float64, booleans accept "true"/"True".
func buildFill(raw map[string]string, dateStr string) (domain.Fill, error) {
	var f domain.Fill

	ts, err := parseFillTime(raw["time"])
	if err != nil {
		return f, err
	}

	user := strings.ToLower(raw["user"])
	if user == "" {
		return f, fmt.Errorf("empty user address")
	}

	side := raw["side"]
	if side != domain.SideBid && side != domain.SideAsk {
		return f, fmt.Errorf("invalid side %q", side)
	}

	px, err := strconv.ParseFloat(raw["px"], 64)
	if err != nil {
		return f, fmt.Errorf("invalid px %q: %v", raw["px"], err)
	}
	sz, err := strconv.ParseFloat(raw["sz"], 64)
	if err != nil {
		return f, fmt.Errorf("invalid sz %q: %v", raw["sz"], err)
	}

	f = domain.Fill{
		TransactionTime: ts,
		DateStr:         dateStr,
		UserAddress:     user,
		Coin:            raw["coin"],
		Side:            side,
		Px:              px,
		Sz:              sz,
		Crossed:         parseFeedBool(raw["crossed"]),
		IsTrigger:       parseFeedBool(raw["isTrigger"]),
		RawData:         raw,
	}

	if v := raw["specialTradeType"]; v != "" {
		f.SpecialTradeType = &v
	}
	if v := raw["tif"]; v != "" {
		f.Tif = &v
	}
	if v := raw["counterparty"]; v != "" {
		cp := strings.ToLower(v)
		f.Counterparty = &cp
	}
	if v := raw["closedPnl"]; v != "" {
		pnl, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, fmt.Errorf("invalid closedPnl %q: %v", v, err)
		}
		f.ClosedPnl = &pnl
	}
	if v := raw["twapId"]; v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid twapId %q: %v", v, err)
		}
		f.TwapID = &id
	}
	if v := raw["builderFee"]; v != "" {
		fee, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, fmt.Errorf("invalid builderFee %q: %v", v, err)
		}
		f.BuilderFee = &fee
	}

	return f, nil
}

// parseFillTime accepts both time representations the feed has used: epoch
// milliseconds (all digits) and ISO-8601 strings. The format is detected per
// row since the feed switched representations between versions with no flag.
func parseFillTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time field")
	}

	if isAllDigits(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid epoch time %q: %v", s, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time format %q", s)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// parseFeedBool accepts the boolean spellings observed in the feed.
func parseFeedBool(s string) bool {
	if s == "True" {
		return true
	}
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
