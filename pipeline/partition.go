package pipeline

import (
	"fmt"
)

// Partition splits the indices [0, n) into workers contiguous blocks. Block
// sizes differ by at most one and the first n % workers blocks are the
// larger ones.
func Partition(n, workers int) [][]int {
	if workers < 1 {
		panic(fmt.Sprintf("Partition given %d workers.", workers))
	} else if n < 0 {
		panic(fmt.Sprintf("Partition given %d items.", n))
	}

	blocks := make([][]int, workers)
	size, rem := n/workers, n%workers

	start := 0
	for i := range blocks {
		bn := size
		if i < rem {
			bn++
		}
		blocks[i] = make([]int, bn)
		for j := range blocks[i] {
			blocks[i][j] = start + j
		}
		start += bn
	}

	return blocks
}
