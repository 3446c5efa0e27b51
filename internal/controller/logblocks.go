package controller

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// BlockDelimiter separates the output of successive launches in a persisted
// log.
const BlockDelimiter = "@@__xproc_block_delimiter__@@"

// lastBlockOffset returns the offset right after the last line containing
// the block delimiter, or 0 when there is none.
func lastBlockOffset(r io.Reader) (int64, error) {
	br := bufio.NewReader(r)
	delim := []byte(BlockDelimiter)
	var pos, last int64
	inLine := false // current line contains the delimiter
	for {
		chunk, err := br.ReadSlice('\n')
		pos += int64(len(chunk))
		if bytes.Contains(chunk, delim) {
			inLine = true
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if inLine {
			last = pos
			inLine = false
		}
		if errors.Is(err, io.EOF) {
			return last, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
