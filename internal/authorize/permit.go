package authorize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vthunder/demerzel/internal/ledger"
)

// DefaultPermitBucket is the time-bucket width folded into permits
const DefaultPermitBucket = 10 * time.Second

type permitMaterial struct {
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args"`
	UserIntent string         `json:"user_intent"`
	Bucket     int64          `json:"bucket"`
}

// MintPermit derives the permit for a request at now. It is a pure function:
// the same tool, canonical args, intent and time bucket always yield the same
// string, so it is only ever a lookup key into the ledger.
func MintPermit(tool string, args map[string]any, userIntent string, now time.Time, bucket time.Duration) (string, error) {
	if bucket <= 0 {
		bucket = DefaultPermitBucket
	}
	if args == nil {
		args = map[string]any{}
	}
	b, err := ledger.Canonical(permitMaterial{
		Tool:       tool,
		Args:       args,
		UserIntent: userIntent,
		Bucket:     timeBucket(now, bucket),
	})
	if err != nil {
		return "", fmt.Errorf("mint permit: %w", err)
	}
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:]), nil
}

// timeBucket is floor(now / bucket), also for times before the epoch
func timeBucket(now time.Time, bucket time.Duration) int64 {
	n := now.UnixNano()
	q := n / int64(bucket)
	if n%int64(bucket) < 0 {
		q--
	}
	return q
}
