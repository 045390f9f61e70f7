package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxLineSize bounds a single block delivered by Pump. Longer lines arrive
// as consecutive blocks, only the last of which ends in a newline.
const MaxLineSize = 64 * 1024

// Pump reads r line by line and delivers each line, newline included, to s.
// A trailing \r is dropped and a final unterminated line gets a newline.
// Pump drains r to EOF so the writer never blocks on a full pipe. It calls
// s.OnProcessed when r is exhausted and returns any read error other than
// EOF.
func Pump(r io.Reader, s Sink) error {
	defer s.OnProcessed()

	br := bufio.NewReaderSize(r, MaxLineSize)
	midLine := false
	for {
		chunk, err := br.ReadSlice('\n')
		switch {
		case err == nil:
			line := strings.TrimSuffix(string(chunk[:len(chunk)-1]), "\r")
			s.Process(line + "\n")
			midLine = false
		case errors.Is(err, bufio.ErrBufferFull):
			s.Process(string(chunk))
			midLine = true
		case errors.Is(err, io.EOF):
			if len(chunk) > 0 || midLine {
				s.Process(string(chunk) + "\n")
			}
			return nil
		default:
			if len(chunk) > 0 {
				s.Process(string(chunk))
			}
			return fmt.Errorf("read process output: %w", err)
		}
	}
}
