package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe is a bar interval plus the interval name exchanges expect.
type Timeframe struct {
	Key      string
	Duration time.Duration
}

var timeframes = map[string]Timeframe{
	"1m":  {Key: "1m", Duration: time.Minute},
	"3m":  {Key: "3m", Duration: 3 * time.Minute},
	"5m":  {Key: "5m", Duration: 5 * time.Minute},
	"15m": {Key: "15m", Duration: 15 * time.Minute},
	"30m": {Key: "30m", Duration: 30 * time.Minute},
	"1h":  {Key: "1h", Duration: time.Hour},
	"2h":  {Key: "2h", Duration: 2 * time.Hour},
	"4h":  {Key: "4h", Duration: 4 * time.Hour},
	"1d":  {Key: "1d", Duration: 24 * time.Hour},
	"1w":  {Key: "1w", Duration: 7 * 24 * time.Hour},
}

func ParseTimeframe(s string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	tf, ok := timeframes[key]
	if !ok {
		return Timeframe{}, fmt.Errorf("unsupported timeframe %q (want one of %s)", s, strings.Join(Timeframes(), ", "))
	}
	return tf, nil
}

// Timeframes lists the supported keys, shortest first.
func Timeframes() []string {
	keys := make([]string, 0, len(timeframes))
	for k := range timeframes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return timeframes[keys[i]].Duration < timeframes[keys[j]].Duration
	})
	return keys
}

// Align truncates t down to the timeframe grid (UTC).
func (tf Timeframe) Align(t time.Time) time.Time {
	return t.UTC().Truncate(tf.Duration)
}

// Expected returns how many bars fall in [from, to).
func (tf Timeframe) Expected(from, to time.Time) int {
	if !to.After(from) || tf.Duration <= 0 {
		return 0
	}
	return int(to.Sub(from) / tf.Duration)
}
