package executor

import "github.com/alanyoungcy/polyladder/internal/domain"

// Partition splits intents into ceil(N/limit) contiguous batches of at most
// limit intents, keeping order. limit <= 0 yields a single batch.
func Partition(intents []domain.OrderIntent, limit int) [][]domain.OrderIntent {
	if len(intents) == 0 {
		return nil
	}
	if limit <= 0 || limit >= len(intents) {
		return [][]domain.OrderIntent{intents}
	}
	batches := make([][]domain.OrderIntent, 0, (len(intents)+limit-1)/limit)
	for start := 0; start < len(intents); start += limit {
		end := min(start+limit, len(intents))
		batches = append(batches, intents[start:end:end])
	}
	return batches
}
