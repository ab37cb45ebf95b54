package indicator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"mtfcollector/pkg/market"
)

// Kind is an indicator family.
type Kind string

const (
	EMA Kind = "EMA"
	SMA Kind = "SMA"
	RSI Kind = "RSI"
	ATR Kind = "ATR"
)

func (k Kind) valid() bool {
	switch k {
	case EMA, SMA, RSI, ATR:
		return true
	}
	return false
}

// Key identifies one precomputed value. SMA always means volume SMA.
type Key struct {
	Kind      Kind
	Timeframe market.Timeframe
	Period    int
}

// String renders the external cache name, e.g. "ATR(H1,14)".
func (k Key) String() string {
	return fmt.Sprintf("%s(%s,%d)", k.Kind, k.Timeframe, k.Period)
}

var keyPattern = regexp.MustCompile(`^\s*([A-Za-z]+)\s*\(\s*([A-Za-z0-9]+)\s*,\s*(\d+)\s*\)\s*$`)

// ParseKey reads the String form back.
func ParseKey(s string) (Key, error) {
	m := keyPattern.FindStringSubmatch(s)
	if m == nil {
		return Key{}, fmt.Errorf("malformed indicator key %q", s)
	}
	kind := Kind(strings.ToUpper(m[1]))
	if !kind.valid() {
		return Key{}, fmt.Errorf("unknown indicator kind %q", m[1])
	}
	tf, err := market.ParseTimeframe(m[2])
	if err != nil {
		return Key{}, err
	}
	period, err := strconv.Atoi(m[3])
	if err != nil || period <= 0 {
		return Key{}, fmt.Errorf("invalid period in %q", s)
	}
	return Key{Kind: kind, Timeframe: tf, Period: period}, nil
}
