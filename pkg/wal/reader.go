package wal

import (
	"errors"
	"fmt"
	"io"
)

// ReadAll scans r from the current position to EOF (or first
// corruption), returning every record read and the byte offset of the
// end of the last valid record. A truncated or corrupt trailing
// record is silently dropped rather than returned as an error — this
// is the expected shape of a crash mid-append (spec.md §4.3.4).
func ReadAll(r io.Reader) (records []Record, validBytes int64, err error) {
	cr := &countingReader{r: r}
	for {
		before := cr.n
		rec, rerr := ReadRecord(cr)
		if rerr == io.EOF {
			return records, cr.n, nil
		}
		if rerr != nil {
			if errors.Is(rerr, ErrTruncated) {
				return records, before, nil
			}
			return records, before, fmt.Errorf("wal: replay: %w", rerr)
		}
		records = append(records, rec)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
