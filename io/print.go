package io

import (
	"fmt"
	"io"
	"os"
)

func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PrintRows writes a whitespace-aligned table where each row starts with an
// ID and a snapshot index. The output can be read back with ReadLenses-style
// column readers.
func PrintRows(w io.Writer, ids []int64, snaps []int, rows [][]float64) {
	height := len(ids)
	if height != len(snaps) {
		panic("Height of ID column does not equal height of snapshot column.")
	} else if height != len(rows) {
		panic("Height of rows does not equal height of ID column.")
	}

	maxWidth := 0
	for i := range rows {
		if len(rows[i]) > maxWidth {
			maxWidth = len(rows[i])
		}
	}

	idW, snapW := 0, 0
	ws := make([]int, maxWidth)

	for i := 0; i < height; i++ {
		idN := len(fmt.Sprintf("%d", ids[i]))
		if idN > idW {
			idW = idN
		}
		snapN := len(fmt.Sprintf("%d", snaps[i]))
		if snapN > snapW {
			snapW = snapN
		}
		for j := range rows[i] {
			valN := len(fmt.Sprintf("%.10g", rows[i][j]))
			if valN > ws[j] {
				ws[j] = valN
			}
		}
	}

	intFmt := fmt.Sprintf("%%%dd %%%dd", idW, snapW)
	floatFmts := make([]string, maxWidth)
	for i := 0; i < len(ws); i++ {
		floatFmts[i] = fmt.Sprintf(" %%%d.10g", ws[i])
	}

	for i := 0; i < height; i++ {
		fmt.Fprintf(w, intFmt, ids[i], snaps[i])
		for j := range rows[i] {
			fmt.Fprintf(w, floatFmts[j], rows[i][j])
		}
		fmt.Fprintln(w)
	}
}
