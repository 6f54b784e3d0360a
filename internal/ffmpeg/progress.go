package ffmpeg

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Update is the progress state after a recognized -progress line.
type Update struct {
	OutTime float64 // seconds of output written so far
	Percent float64 // 0-100, meaningful only when Known
	Known   bool    // false when the total duration is unknown
	End     bool    // progress=end was seen
}

// ProgressParser consumes the key=value lines ffmpeg writes with -progress.
type ProgressParser struct {
	total   float64
	outTime float64
	end     bool
}

// NewProgressParser creates a parser for a source of totalSeconds (0 = unknown).
func NewProgressParser(totalSeconds float64) *ProgressParser {
	return &ProgressParser{total: totalSeconds}
}

// ParseLine parses one line and reports whether it moved progress.
//
// out_time_us and out_time_ms both carry microseconds (ffmpeg names the
// latter wrongly); out_time is HH:MM:SS.micro. N/A values are ignored.
func (pp *ProgressParser) ParseLine(line string) (Update, bool) {
	line = strings.TrimSpace(line)
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return pp.current(), false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	switch key {
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return pp.current(), false
		}
		return pp.advance(float64(us) / 1e6), true
	case "out_time":
		seconds := TimeToSeconds(value)
		if seconds < 0 {
			return pp.current(), false
		}
		return pp.advance(seconds), true
	case "progress":
		if value == "end" {
			pp.end = true
			if pp.total > 0 {
				pp.outTime = pp.total
			}
			return pp.current(), true
		}
	}
	return pp.current(), false
}

// advance moves the output position forward; ffmpeg never goes backwards,
// but duplicate keys within one block must not regress the percentage.
func (pp *ProgressParser) advance(seconds float64) Update {
	if seconds > pp.outTime {
		pp.outTime = seconds
	}
	return pp.current()
}

func (pp *ProgressParser) current() Update {
	u := Update{OutTime: pp.outTime, End: pp.end}
	if pp.total > 0 {
		u.Known = true
		u.Percent = pp.outTime / pp.total * 100
		if u.Percent > 100 {
			u.Percent = 100
		}
	}
	return u
}

// TimeToSeconds converts ffmpeg's HH:MM:SS.micro format to seconds.
// Returns -1 when the value cannot be parsed.
func TimeToSeconds(timeStr string) float64 {
	timeStr = strings.TrimSpace(timeStr)
	negative := strings.HasPrefix(timeStr, "-")
	parts := strings.Split(strings.TrimPrefix(timeStr, "-"), ":")
	if len(parts) != 3 {
		return -1
	}

	hours, err1 := strconv.ParseFloat(parts[0], 64)
	minutes, err2 := strconv.ParseFloat(parts[1], 64)
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return -1
	}
	if negative {
		// ffmpeg prints -00:00:00.0xxx before the first packet
		return 0
	}

	return hours*3600 + minutes*60 + seconds
}

// Diagnostics remembers the last line ffmpeg wrote to stderr. With
// -loglevel error every such line is an error report.
type Diagnostics struct {
	last string
}

// Add records one stderr line. Blank lines are ignored.
func (d *Diagnostics) Add(line string) {
	if line = strings.TrimSpace(line); line != "" {
		d.last = line
	}
}

// Last returns the most recent diagnostic line, or "".
func (d *Diagnostics) Last() string {
	return d.last
}

// ScanLines calls fn for every line of r. Both \n and \r end a line, since
// ffmpeg rewrites status lines in place with carriage returns. After a read
// error the rest of r is discarded so the writing process never blocks.
func ScanLines(r io.Reader, fn func(line string)) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	scanner.Split(scanLinesWithCR)

	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		io.Copy(io.Discard, r)
		return fmt.Errorf("error reading ffmpeg output: %w", err)
	}
	return nil
}

func scanLinesWithCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
