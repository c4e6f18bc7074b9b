package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/google/orderedcode"

	"github.com/ordsys/sequencer/types"
)

// Keyspace layout. Key construction concatenates a domain prefix with
// fixed-width numeric spans so that lexicographic order over the store is
// exactly the traversal order the state machine needs. Prefixes end in '/'
// so sibling domains cannot shadow each other.
const (
	MetaVersionKey = "meta/version"
	MetaRootPrefix = "meta/root/"

	// params/ keys participate in the app hash; meta/ keys do not.
	ParamsChainIDKey  = "params/chain_id"
	ParamsPrefixKey   = "params/address_prefix"
	ParamsSudoKey     = "params/sudo"
	ParamsSlippageKey = "params/slippage_bps"

	FeeSchedulePrefix = "fees/schedule/"
	FeeCollectorKey   = "fees/collector"

	AssetPrefix = "assets/"

	BalancePrefix = "accounts/balance/"
	EscrowPrefix  = "accounts/escrow/"
	NoncePrefix   = "accounts/nonce/"

	MarketPrefix = "market/"
	OrderPrefix  = "order/"
	LadderPrefix = "ladder/"
	OwnerPrefix  = "owner/"
	TradePrefix  = "trade/"

	LadderSeqPrefix = "ladderseq/"
)

// MetaRootKey stores the app hash of a committed height.
func MetaRootKey(height uint64) []byte {
	key := make([]byte, len(MetaRootPrefix)+8)
	copy(key, MetaRootPrefix)
	binary.BigEndian.PutUint64(key[len(MetaRootPrefix):], height)
	return key
}

// FeeScheduleKey addresses the fee entry of one action kind.
func FeeScheduleKey(tag types.ActionTag) []byte {
	return []byte(fmt.Sprintf("%s%02x", FeeSchedulePrefix, uint8(tag)))
}

// AssetKey marks an asset as registered.
func AssetKey(asset string) []byte {
	return []byte(AssetPrefix + asset)
}

// BalanceKey addresses the free balance of (address, asset).
func BalanceKey(addr types.Address, asset string) []byte {
	return []byte(fmt.Sprintf("%s%X/%s", BalancePrefix, addr[:], asset))
}

// EscrowKey addresses the escrowed balance of (address, asset).
func EscrowKey(addr types.Address, asset string) []byte {
	return []byte(fmt.Sprintf("%s%X/%s", EscrowPrefix, addr[:], asset))
}

// NonceKey addresses the next expected nonce of an account.
func NonceKey(addr types.Address) []byte {
	return []byte(fmt.Sprintf("%s%X", NoncePrefix, addr[:]))
}

// MarketKey addresses a market descriptor.
func MarketKey(marketID string) []byte {
	return []byte(MarketPrefix + marketID)
}

// OrderKey addresses the authoritative order record.
func OrderKey(id types.OrderID) []byte {
	key := make([]byte, 0, len(OrderPrefix)+types.OrderIDSize)
	key = append(key, OrderPrefix...)
	return append(key, id[:]...)
}

// LadderSeqKey holds the per-market arrival counter for ladder inserts.
func LadderSeqKey(marketID string) []byte {
	return []byte(LadderSeqPrefix + marketID)
}

// LadderSidePrefix is the prefix under which one side of a market's book
// sorts best-price-first.
func LadderSidePrefix(marketID string, side types.Side) []byte {
	return []byte(fmt.Sprintf("%s%s/%d/", LadderPrefix, marketID, uint8(side)))
}

// LadderKey places an order in its ladder. The price span is big-endian so
// ascending key order is ascending price; for bids the price bytes are
// complemented so ascending key order walks highest price first. The
// trailing sequence span fixes time priority within a level.
func LadderKey(marketID string, side types.Side, price types.Uint128, seq uint64) []byte {
	prefix := LadderSidePrefix(marketID, side)
	key := make([]byte, len(prefix)+16+1+8)
	copy(key, prefix)
	off := len(prefix)
	binary.BigEndian.PutUint64(key[off:], price.Hi)
	binary.BigEndian.PutUint64(key[off+8:], price.Lo)
	if side == types.SideBuy {
		for i := off; i < off+16; i++ {
			key[i] = ^key[i]
		}
	}
	key[off+16] = '/'
	binary.BigEndian.PutUint64(key[off+17:], seq)
	return key
}

// PriceFromLadderKey recovers the price span of a ladder key produced by
// LadderKey under the given side prefix.
func PriceFromLadderKey(key []byte, prefixLen int, side types.Side) (types.Uint128, error) {
	if len(key) < prefixLen+16 {
		return types.Uint128{}, fmt.Errorf("%w: ladder key too short", types.ErrDecode)
	}
	span := make([]byte, 16)
	copy(span, key[prefixLen:prefixLen+16])
	if side == types.SideBuy {
		for i := range span {
			span[i] = ^span[i]
		}
	}
	return types.Uint128{
		Hi: binary.BigEndian.Uint64(span[:8]),
		Lo: binary.BigEndian.Uint64(span[8:]),
	}, nil
}

// OwnerOrderKey indexes an order id under its owner and market for cancel
// lookups and per-owner enumeration.
func OwnerOrderKey(addr types.Address, marketID string, id types.OrderID) []byte {
	return []byte(fmt.Sprintf("%s%X/%s/%s", OwnerPrefix, addr[:], marketID, id))
}

// OwnerMarketPrefix scans one owner's orders in one market.
func OwnerMarketPrefix(addr types.Address, marketID string) []byte {
	return []byte(fmt.Sprintf("%s%X/%s/", OwnerPrefix, addr[:], marketID))
}

// OwnerAllPrefix scans all of one owner's orders.
func OwnerAllPrefix(addr types.Address) []byte {
	return []byte(fmt.Sprintf("%s%X/", OwnerPrefix, addr[:]))
}

// TradeKey indexes a fill by (market, height, txIndex, fillIndex) using
// orderedcode so the natural key order is chronological per market.
func TradeKey(marketID string, height uint64, txIndex, fillIndex int64) ([]byte, error) {
	key, err := orderedcode.Append([]byte(TradePrefix), marketID, int64(height), txIndex, fillIndex)
	if err != nil {
		return nil, fmt.Errorf("building trade key: %w", err)
	}
	return key, nil
}

// TradeMarketPrefix scans all trades of one market in chronological order.
func TradeMarketPrefix(marketID string) ([]byte, error) {
	key, err := orderedcode.Append([]byte(TradePrefix), marketID)
	if err != nil {
		return nil, fmt.Errorf("building trade prefix: %w", err)
	}
	return key, nil
}

// PrefixEnd returns the smallest key greater than every key having the
// given prefix, or nil when the prefix is all 0xff.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
