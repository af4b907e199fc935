// Package lottery implements weighted winner selection without replacement.
package lottery

import (
	"math/rand/v2"
	"sort"
)

// Ticket is one participant's stake in a draw.
type Ticket struct {
	ParticipantID string
	Weight        int
}

// Source supplies uniform random integers in [0, n).
type Source interface {
	Int64N(n int64) int64
}

type defaultSource struct{}

func (defaultSource) Int64N(n int64) int64 {
	return rand.Int64N(n)
}

// SelectWinners draws up to count distinct participants with probability
// proportional to their weight. Excluded participants and non-positive weights
// never enter the pool. Repeated participant IDs have their weights summed.
// Each call is an independent random trial.
func SelectWinners(tickets []Ticket, count int, exclude map[string]bool) []string {
	return SelectWinnersWithSource(tickets, count, exclude, defaultSource{})
}

// SelectWinnersWithSource is SelectWinners with an explicit random source.
func SelectWinnersWithSource(tickets []Ticket, count int, exclude map[string]bool, src Source) []string {
	if count <= 0 {
		return []string{}
	}

	pool := buildPool(tickets, exclude)
	if count > len(pool) {
		count = len(pool)
	}

	winners := make([]string, 0, count)
	cumulative := make([]int64, len(pool))

	for len(winners) < count {
		var total int64
		for i, t := range pool {
			total += int64(t.Weight)
			cumulative[i] = total
		}

		r := src.Int64N(total)
		// First index whose running total exceeds r.
		idx := sort.Search(len(pool), func(i int) bool {
			return cumulative[i] > r
		})

		winners = append(winners, pool[idx].ParticipantID)

		// Drop the winner together with all of their remaining weight.
		pool = append(pool[:idx], pool[idx+1:]...)
		cumulative = cumulative[:len(pool)]
	}

	return winners
}

// buildPool merges duplicate participants and removes excluded or weightless ones.
// Pool order follows first appearance so a given source yields a stable result.
func buildPool(tickets []Ticket, exclude map[string]bool) []Ticket {
	index := make(map[string]int, len(tickets))
	pool := make([]Ticket, 0, len(tickets))

	for _, t := range tickets {
		if t.Weight <= 0 || exclude[t.ParticipantID] {
			continue
		}
		if i, ok := index[t.ParticipantID]; ok {
			pool[i].Weight += t.Weight
			continue
		}
		index[t.ParticipantID] = len(pool)
		pool = append(pool, t)
	}

	return pool
}

// TotalWeight sums the weights of the eligible pool.
func TotalWeight(tickets []Ticket, exclude map[string]bool) int64 {
	var total int64
	for _, t := range buildPool(tickets, exclude) {
		total += int64(t.Weight)
	}
	return total
}
