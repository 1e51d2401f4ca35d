package forecast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// fingerprintVersion is bumped whenever the canonical rendition changes, so
// stale cache entries from older builds can never alias new ones.
const fingerprintVersion = "v1"

// Fingerprint derives the cache key for a normalized input. The user ID is
// part of the digested content, not metadata: two users with byte-identical
// histories get distinct fingerprints, so the cache cannot cross user
// boundaries even if the data portion of the digest were to collide.
func Fingerprint(userID string, in *NormalizedInput, horizon Horizon) string {
	var b strings.Builder
	b.WriteString(fingerprintVersion)
	b.WriteByte('|')
	b.WriteString(userID)
	b.WriteByte('|')
	b.WriteString(string(horizon))

	// Categories arrive sorted from the normalizer; re-rendering them in that
	// order makes the digest independent of the caller's input ordering.
	for i := range in.Categories {
		writeSeries(&b, &in.Categories[i])
	}
	writeSeries(&b, &in.Aggregate)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeSeries(b *strings.Builder, s *Series) {
	b.WriteByte('|')
	b.WriteString(s.Category)
	b.WriteByte(':')
	b.WriteString(string(s.Kind))
	for _, p := range s.Points {
		if p.Amount == 0 {
			continue // gap-filled zeros carry no information
		}
		fmt.Fprintf(b, ";%s=%.2f", p.Date.Format("2006-01-02"), p.Amount)
	}
}
