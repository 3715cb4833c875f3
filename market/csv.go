package market

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const csvLayout = "2006-01-02T15:04:05Z"

// LoadSnapshotCSV reads bars from a snapshot file for replay. Expected line
// format: time,open,high,low,close[,volume] with the timestamp in UTC.
// A header row starting with "time" is skipped; malformed lines are counted
// and reported, not fatal.
func LoadSnapshotCSV(path string, period time.Duration) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bars []Bar
	var badLines int

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(strings.ToLower(line), "time") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 5 {
			badLines++
			continue
		}

		ts, err := time.Parse(csvLayout, strings.TrimSpace(parts[0]))
		if err != nil {
			badLines++
			continue
		}

		var px [4]float64
		ok := true
		for i := 0; i < 4; i++ {
			if px[i], err = strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			badLines++
			continue
		}

		b := Bar{
			Time:   ts.UTC(),
			Open:   px[0],
			High:   px[1],
			Low:    px[2],
			Close:  px[3],
			Period: period,
			Source: SourceSnapshot,
		}
		if len(parts) > 5 {
			b.Volume, _ = strconv.ParseFloat(strings.TrimSpace(parts[5]), 64)
		}
		bars = append(bars, b)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if badLines > 0 {
		fmt.Fprintf(os.Stderr, "snapshot ingest warnings: badLines=%d file=%s\n", badLines, path)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no valid bars found in %s", path)
	}
	return bars, nil
}
