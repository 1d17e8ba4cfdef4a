package acquisition

import "sort"

// GroupConsecutive sorts addrs ascending and partitions them into
// maximal runs of consecutive values, e.g. [5,1,2,7,8,9] -> [[1,2],[5],
// [7,8,9]]. It is purely an optimization hint for adapters that can read
// a contiguous range in one call; correctness of the poll cycle never
// depends on using it.
func GroupConsecutive(addrs []uint8) [][]uint8 {
	if len(addrs) == 0 {
		return nil
	}

	sorted := make([]uint8, len(addrs))
	copy(sorted, addrs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	groups := make([][]uint8, 0)
	run := []uint8{sorted[0]}

	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			continue // dedup
		}
		if sorted[i] == sorted[i-1]+1 {
			run = append(run, sorted[i])
			continue
		}
		groups = append(groups, run)
		run = []uint8{sorted[i]}
	}
	groups = append(groups, run)

	return groups
}

// mergeAddresses returns the ascending, deduplicated union of two
// address sets.
func mergeAddresses(a, b []uint8) []uint8 {
	seen := make(map[uint8]struct{}, len(a)+len(b))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}

	out := make([]uint8, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}
