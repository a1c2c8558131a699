// Package orderid generates the client order IDs TradeGate attaches to
// every bracket order so a retried PlaceOrderWithTPSL call is idempotent on
// the exchange side. Grounded on the teacher's
// internal/orders/client_order_id.go (ClientOrderIdGenerator, structured
// MODE-DATE-SEQ-TYPE format with a FALLBACK path when the sequence source
// is unavailable), generalized from a Redis-backed daily sequence to a
// google/uuid-backed generator since the core has no sequence-provider
// dependency of its own.
package orderid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxLength mirrors the exchange-imposed client order ID length cap the
// teacher's generator enforced for Binance; kept as a sanity bound here
// even though the target venue's limit may differ.
const MaxLength = 36

// Generator builds structured client order IDs: PREFIX-SYMBOL-DIR-SHORTUUID,
// truncated to MaxLength.
type Generator struct {
	prefix string
}

// New returns a Generator tagging every ID with prefix (e.g. an engine
// instance name), so IDs from two engines never collide even if their UUID
// entropy sources were somehow shared.
func New(prefix string) *Generator {
	return &Generator{prefix: strings.ToUpper(prefix)}
}

// Next returns a new client order ID for symbol/direction, format:
// PREFIX-SYMBOL-DIR-XXXXXXXX (first 8 hex chars of a fresh UUIDv4).
func (g *Generator) Next(symbol, direction string) string {
	id := uuid.New().String()
	short := strings.ReplaceAll(id, "-", "")[:8]
	dir := strings.ToUpper(direction)
	if len(dir) > 1 {
		dir = dir[:1]
	}
	full := fmt.Sprintf("%s-%s-%s-%s", g.prefix, strings.ToUpper(symbol), dir, short)
	if len(full) > MaxLength {
		full = full[:MaxLength]
	}
	return full
}
