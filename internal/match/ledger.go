package match

import (
	"encoding/binary"
	"hash/fnv"
)

// ClaimOutcome is the result of a wager claim. Rejections are outcomes, not errors.
type ClaimOutcome string

const (
	ClaimAccepted      ClaimOutcome = "accepted"
	ClaimRejectedUsed  ClaimOutcome = "rejected_used"
	ClaimRejectedRange ClaimOutcome = "rejected_range"
)

// Ledger enforces that a player spends each regular-round wager value at most once per match.
type Ledger struct {
	total int
}

func NewLedger(totalQuestions int) Ledger {
	if totalQuestions < 0 {
		totalQuestions = 0
	}
	return Ledger{total: totalQuestions}
}

func (l Ledger) Total() int { return l.total }

// Available returns [1,total] minus used, in the shuffled presentation order.
// Every client computing this from the same inputs gets the same order.
func (l Ledger) Available(used []int) []int {
	spent := make(map[int]struct{}, len(used))
	for _, v := range used {
		spent[v] = struct{}{}
	}
	out := make([]int, 0, l.total)
	for v := 1; v <= l.total; v++ {
		if _, ok := spent[v]; !ok {
			out = append(out, v)
		}
	}

	rng := mulberry32{state: shuffleSeed(l.total, used)}
	for i := len(out) - 1; i > 0; i-- {
		j := int(uint64(rng.next()) * uint64(i+1) >> 32)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Claim records value on the player when it is in range and unused.
func (l Ledger) Claim(p *Player, value int) ClaimOutcome {
	if p == nil || value < 1 || value > l.total {
		return ClaimRejectedRange
	}
	if p.HasUsed(value) {
		return ClaimRejectedUsed
	}
	p.UsedBets = append(p.UsedBets, value)
	v := value
	p.CurrentBet = &v
	return ClaimAccepted
}

// Next returns the value after current in the shuffled order.
// An unavailable current yields the first available value.
func (l Ledger) Next(used []int, current int) (int, bool) {
	order := l.Available(used)
	if len(order) == 0 {
		return 0, false
	}
	idx := indexOf(order, current)
	if idx < 0 {
		return order[0], true
	}
	if idx+1 >= len(order) {
		return 0, false
	}
	return order[idx+1], true
}

// Previous mirrors Next; an unavailable current yields the last available value.
func (l Ledger) Previous(used []int, current int) (int, bool) {
	order := l.Available(used)
	if len(order) == 0 {
		return 0, false
	}
	idx := indexOf(order, current)
	if idx < 0 {
		return order[len(order)-1], true
	}
	if idx == 0 {
		return 0, false
	}
	return order[idx-1], true
}

func indexOf(values []int, v int) int {
	for i, x := range values {
		if x == v {
			return i
		}
	}
	return -1
}

// shuffleSeed folds total and then every used value, in stored order, into FNV-1a.
// Values are written as 4-byte little-endian two's complement.
func shuffleSeed(total int, used []int) uint32 {
	h := fnv.New32a()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(int32(total)))
	_, _ = h.Write(buf[:])
	for _, v := range used {
		binary.LittleEndian.PutUint32(buf[:], uint32(int32(v)))
		_, _ = h.Write(buf[:])
	}
	return h.Sum32()
}

// mulberry32 is a small counter-based generator; its output sequence is part of the
// cross-client ordering contract and must not change.
type mulberry32 struct {
	state uint32
}

func (m *mulberry32) next() uint32 {
	m.state += 0x6D2B79F5
	t := m.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return t ^ (t >> 14)
}
