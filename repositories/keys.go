package repositories

import (
	"encoding/binary"
	"fmt"
	"net/url"

	"market-chat/domain"
)

// Badger key layout:
//
//	msg:{low}:{high}:{seq}  -> message, low/high are the sorted pair
//	idx:{user}:{seq}        -> message key, one entry per participant
//	usr:{user}              -> directory entry
//
// User ids are query-escaped so that ':' never appears inside a segment,
// and seq is zero padded on 20 digits so lexicographical order is numeric order.
const (
	messagePrefix   = "msg:"
	userIndexPrefix = "idx:"
	userPrefix      = "usr:"
	sequenceKey     = "seq:messages"
	lastAtKey       = "meta:last_at"
)

func segment(id domain.UserID) string {
	return url.QueryEscape(string(id))
}

func sortedPair(a, b domain.UserID) (domain.UserID, domain.UserID) {
	if a <= b {
		return a, b
	}
	return b, a
}

func pairPrefix(a, b domain.UserID) []byte {
	low, high := sortedPair(a, b)
	return []byte(fmt.Sprintf("%s%s:%s:", messagePrefix, segment(low), segment(high)))
}

func messageKey(a, b domain.UserID, seq uint64) []byte {
	return append(pairPrefix(a, b), []byte(fmt.Sprintf("%020d", seq))...)
}

func userIndexPrefixFor(user domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%s:", userIndexPrefix, segment(user)))
}

func userIndexKey(user domain.UserID, seq uint64) []byte {
	return append(userIndexPrefixFor(user), []byte(fmt.Sprintf("%020d", seq))...)
}

func userKey(id domain.UserID) []byte {
	return []byte(userPrefix + segment(id))
}

func encodeNano(nano int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(nano))
	return buf
}

func decodeNano(buf []byte) (int64, error) {
	if len(buf) != 8 {
		return 0, fmt.Errorf("invalid timestamp length %d", len(buf))
	}
	return int64(binary.BigEndian.Uint64(buf)), nil
}
