package pebblestore

import (
	"fmt"
	"net/url"
)

// Key schema:
//
//	acc:{account}              account row
//	hold:{account}:{symbol}    holding row
//	seq:{account}              last transaction sequence number
//	tx:{account}:{seq}         transaction, seq zero-padded so keys sort in commit order
//
// Account ids are query-escaped so a ':' inside an id cannot collide with another prefix.
const (
	prefixAccount     = "acc:"
	prefixHolding     = "hold:"
	prefixSequence    = "seq:"
	prefixTransaction = "tx:"
)

func accountKey(accountId string) []byte {
	return []byte(prefixAccount + url.QueryEscape(accountId))
}

func holdingKey(accountId, symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixHolding, url.QueryEscape(accountId), symbol))
}

func holdingPrefix(accountId string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixHolding, url.QueryEscape(accountId)))
}

func sequenceKey(accountId string) []byte {
	return []byte(prefixSequence + url.QueryEscape(accountId))
}

func transactionKey(accountId string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixTransaction, url.QueryEscape(accountId), seq))
}

func transactionPrefix(accountId string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTransaction, url.QueryEscape(accountId)))
}

// keyUpperBound returns the smallest key greater than every key with the given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
