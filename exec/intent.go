package exec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rustyeddy/breakout/broker"
)

// Intent is the canonical record of one side of a potential entry. It is
// never mutated after creation; a changed field is a different intent and
// therefore a different hash.
type Intent struct {
	Instrument  string
	Stream      string
	TradingDate string
	Session     string
	SlotTime    string
	Direction   broker.Direction
	Immediate   bool // price already beyond the level at lock time
	Entry       float64
	Stop        float64
	Target      float64
	Qty         float64
}

// Hash is the intent's idempotency key: sha256 over the canonical field
// string. The trading date is part of the key, so identical intents on
// different days never collide.
func (i Intent) Hash() string {
	canon := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%t|%.10f|%.10f|%.10f|%.10f",
		i.TradingDate, i.Stream, i.Instrument, i.Session, i.SlotTime,
		i.Direction, i.Immediate, i.Entry, i.Stop, i.Target, i.Qty)
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])
}

// Complete reports whether every money-moving field is present. An
// incomplete intent is a gate rejection, not a nil dereference later.
func (i Intent) Complete() bool {
	return i.Instrument != "" &&
		i.Stream != "" &&
		i.TradingDate != "" &&
		(i.Direction == broker.Long || i.Direction == broker.Short) &&
		i.Entry > 0 &&
		i.Stop > 0 &&
		i.Target > 0 &&
		i.Qty > 0
}
