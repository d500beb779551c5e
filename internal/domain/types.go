// Package domain defines the core value types shared across the acquisition
// pipeline: option rights and quote sides, individual quote samples, and the
// option contract identity used to address the external data provider.
package domain

import (
	"fmt"
	"time"
)

// Right is the option type: call or put.
type Right string

// Side is the quote side: bid or ask.
type Side string

const (
	RightCall Right = "C"
	RightPut  Right = "P"

	SideBid Side = "B"
	SideAsk Side = "A"
)

// Rights and Sides enumerate the full universe in canonical order.
var (
	Rights = []Right{RightCall, RightPut}
	Sides  = []Side{SideBid, SideAsk}
)

// Code returns the integer encoding used by the binary artifact format
// (0 = call, 1 = put).
func (r Right) Code() int32 {
	if r == RightPut {
		return 1
	}
	return 0
}

// Valid reports whether r is a known right.
func (r Right) Valid() bool {
	return r == RightCall || r == RightPut
}

// Code returns the integer encoding used by the binary artifact format
// (0 = bid, 1 = ask).
func (s Side) Code() int32 {
	if s == SideAsk {
		return 1
	}
	return 0
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

// RightFromCode is the inverse of Right.Code.
func RightFromCode(c int32) Right {
	if c == 1 {
		return RightPut
	}
	return RightCall
}

// SideFromCode is the inverse of Side.Code.
func SideFromCode(c int32) Side {
	if c == 1 {
		return SideAsk
	}
	return SideBid
}

// Quote is one observed sample of one side of one contract. Timestamp is in
// epoch seconds.
type Quote struct {
	Timestamp int64
	Strike    int
	Right     Right
	Side      Side
	Price     float64
}

// Key uniquely identifies a quote row. The merger deduplicates on it when a
// resumed run re-fetched part of a batch.
type Key struct {
	Timestamp int64
	Strike    int
	Right     Right
	Side      Side
}

// Key returns the row's identity.
func (q Quote) Key() Key {
	return Key{Timestamp: q.Timestamp, Strike: q.Strike, Right: q.Right, Side: q.Side}
}

// OptionContract identifies one listed option: underlying root, expiry,
// strike, and right. For 0DTE collection the expiry is the run date.
type OptionContract struct {
	Root   string // option root symbol, e.g. "SPXW"
	Expiry time.Time
	Strike int
	Right  Right
}

// OCCSymbol renders the contract in OCC 21-character format, e.g.
// "SPXW250617C05400000" — root, yymmdd expiry, right, strike in
// thousandths padded to eight digits.
func (c OptionContract) OCCSymbol() string {
	return fmt.Sprintf("%s%s%s%08d", c.Root, c.Expiry.Format("060102"), string(c.Right), c.Strike*1000)
}

func (c OptionContract) String() string {
	return c.OCCSymbol()
}
