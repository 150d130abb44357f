package pagination

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Unit names what a cursor pages over.
type Unit string

const (
	UnitSessions Unit = "sessions"
	UnitPatterns Unit = "patterns"
)

// Cursor is the canonical, opaque pagination token (pre-encoding) with short field names to
// minimize payload size. It is serialized to minified JSON and encoded with URL-safe base64.
//
// Fields:
//   - v:   version of the cursor schema
//   - u:   unit being listed
//   - off: offset from the start of the listing
//   - ps:  page size
//   - iat: issued-at timestamp (unix seconds)
//   - qh:  optional query hash; a cursor only resumes the query it was issued for
type Cursor struct {
	V   int    `json:"v"`
	U   Unit   `json:"u"`
	Off int    `json:"off"`
	Ps  int    `json:"ps"`
	Iat int64  `json:"iat"`
	Qh  string `json:"qh,omitempty"`
}

// EncodeCursor serializes and encodes the cursor as URL-safe base64 (without padding).
func EncodeCursor(c Cursor) (string, error) {
	if err := validate(&c); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor decodes a URL-safe base64 token and parses the JSON cursor.
func DecodeCursor(token string) (*Cursor, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, errors.New("cursor: empty token")
	}
	data, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return nil, fmt.Errorf("cursor: invalid base64: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cursor: invalid json: %w", err)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// validate performs structural checks and defaulting.
func validate(c *Cursor) error {
	if c.V <= 0 {
		c.V = 1
	}
	if c.Iat == 0 {
		c.Iat = time.Now().Unix()
	}
	switch c.U {
	case UnitSessions, UnitPatterns:
		// ok
	default:
		return fmt.Errorf("cursor: invalid unit %q", string(c.U))
	}
	if c.Off < 0 {
		return errors.New("cursor: off must be >= 0")
	}
	if c.Ps <= 0 {
		return errors.New("cursor: ps must be > 0")
	}
	return nil
}

// QueryHash fingerprints a query so a cursor can be bound to it.
func QueryHash(q string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(q))))
	return hex.EncodeToString(sum[:6])
}

// NextOffset computes the next offset after returning n units.
func NextOffset(curr, n int) int {
	if curr < 0 {
		curr = 0
	}
	if n <= 0 {
		return curr
	}
	return curr + n
}

// Slice returns the page of items starting at off and whether more follow.
func Slice[T any](items []T, off, size int) ([]T, bool) {
	if off < 0 {
		off = 0
	}
	if off >= len(items) || size <= 0 {
		return []T{}, false
	}
	end := min(off+size, len(items))
	return items[off:end], end < len(items)
}
