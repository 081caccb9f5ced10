package estimator

import (
	"sort"
	"strings"
	"time"

	"ClientPulse/internal/domain/models"
	"ClientPulse/pkg/util"
)

// dayStat is one trading day of aggregated client activity. The day axis of
// every signal is the list of days that have at least one surviving trade,
// ascending; calendar gaps are not filled in.
type dayStat struct {
	date        time.Time
	trades      int
	volume      float64
	instruments int
	buyVolume   float64
	sellVolume  float64
	netSign     int // +1 buy-heavy, -1 sell-heavy, 0 balanced
	flips       int // position flip events dated to this day
}

func (d *dayStat) buyRatio() float64 {
	total := d.buyVolume + d.sellVolume
	if total == 0 {
		return 0.5
	}
	return d.buyVolume / total
}

type normalized struct {
	days    []dayStat
	dropped int
	kept    int
	asOf    time.Time // latest surviving trade, anchors the lookback window
}

// normalize drops malformed records one by one, sorts chronologically,
// restricts to the lookback window anchored at the latest trade, aggregates
// per UTC day and marks position flips. The anchor is the data itself, not
// the wall clock, so identical input always yields identical output.
func normalize(trades []models.TradeRecord, lookbackDays int) normalized {
	var out normalized

	clean := make([]models.TradeRecord, 0, len(trades))
	for _, t := range trades {
		if t.Timestamp.IsZero() || t.Quantity <= 0 || (t.Side != models.SideBuy && t.Side != models.SideSell) {
			out.dropped++
			continue
		}
		clean = append(clean, t)
	}
	if len(clean) == 0 {
		return out
	}

	sort.SliceStable(clean, func(i, j int) bool {
		return clean[i].Timestamp.Before(clean[j].Timestamp)
	})

	asOf := clean[len(clean)-1].Timestamp
	cutoff := asOf.AddDate(0, 0, -lookbackDays)
	windowed := clean[:0]
	for _, t := range clean {
		if !t.Timestamp.After(cutoff) {
			continue
		}
		windowed = append(windowed, t)
	}

	out.asOf = asOf
	out.kept = len(windowed)
	out.days = aggregateDays(windowed)
	markFlips(windowed, out.days)
	return out
}

func aggregateDays(trades []models.TradeRecord) []dayStat {
	var days []dayStat
	instruments := map[string]struct{}{}

	for _, t := range trades {
		day := util.DayUTC(t.Timestamp)
		if len(days) == 0 || !days[len(days)-1].date.Equal(day) {
			days = append(days, dayStat{date: day})
			instruments = map[string]struct{}{}
		}
		d := &days[len(days)-1]
		d.trades++
		d.volume += t.Quantity
		if _, seen := instruments[t.Instrument]; !seen {
			instruments[t.Instrument] = struct{}{}
			d.instruments++
		}
		if t.Side == models.SideBuy {
			d.buyVolume += t.Quantity
		} else {
			d.sellVolume += t.Quantity
		}
	}

	for i := range days {
		switch {
		case days[i].buyVolume > days[i].sellVolume:
			days[i].netSign = 1
		case days[i].sellVolume > days[i].buyVolume:
			days[i].netSign = -1
		}
	}
	return days
}

// markFlips walks each instrument's cumulative signed position and dates a
// flip wherever the sign moves between long and short. The last non-zero
// sign is carried, so establishing a position or touching exactly zero and
// returning to the same side is not a flip.
func markFlips(trades []models.TradeRecord, days []dayStat) {
	if len(days) == 0 {
		return
	}
	dayIndex := make(map[time.Time]int, len(days))
	for i, d := range days {
		dayIndex[d.date] = i
	}

	type instrState struct {
		cum      float64
		lastSign int
	}
	state := map[string]*instrState{}

	for _, t := range trades {
		st := state[t.Instrument]
		if st == nil {
			st = &instrState{}
			state[t.Instrument] = st
		}
		st.cum += t.SignedQuantity()

		sign := 0
		if st.cum > 0 {
			sign = 1
		} else if st.cum < 0 {
			sign = -1
		}
		if sign == 0 {
			continue
		}
		if st.lastSign != 0 && sign != st.lastSign {
			if i, ok := dayIndex[util.DayUTC(t.Timestamp)]; ok {
				days[i].flips++
			}
		}
		st.lastSign = sign
	}
}

// NormalizeRaw converts wire records to trade records, dropping those whose
// timestamp does not parse or whose side is unknown. Records without a client
// id inherit clientID. Returns the clean records and the drop count.
func NormalizeRaw(raw []models.RawTradeRecord, clientID string) ([]models.TradeRecord, int) {
	out := make([]models.TradeRecord, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		ts, ok := util.ParseTime(r.Timestamp)
		if !ok {
			dropped++
			continue
		}
		var side models.Side
		switch strings.ToUpper(r.Side) {
		case string(models.SideBuy):
			side = models.SideBuy
		case string(models.SideSell):
			side = models.SideSell
		default:
			dropped++
			continue
		}
		id := r.ClientID
		if id == "" {
			id = clientID
		}
		out = append(out, models.TradeRecord{
			TradeID:    r.TradeID,
			ClientID:   id,
			Timestamp:  ts,
			Instrument: r.Instrument,
			Side:       side,
			Quantity:   r.Quantity,
			Price:      r.Price,
			OrderType:  r.OrderType,
			Venue:      r.Venue,
		})
	}
	return out, dropped
}
