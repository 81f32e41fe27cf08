package market

import (
	"context"
	"sort"
	"time"
)

// FetchRequest selects bars for one symbol in [Start, End).
type FetchRequest struct {
	Symbol    string
	Timeframe string
	Start     time.Time
	End       time.Time
}

// Source loads historical bars.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req FetchRequest) (Series, error)
}

// Normalize sorts bars by time and drops duplicate timestamps, keeping the
// last bar seen for each. Gaps are left as they are.
func Normalize(s Series) Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	n := 0
	for i := range out {
		if n > 0 && out[i].Time.Equal(out[n-1].Time) {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}
