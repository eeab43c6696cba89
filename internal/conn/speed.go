package conn

import "time"

// FastRTTLimit is the default total-RTT threshold under which a link is
// classified FAST, spec.md §4.5 ("~40 ms by default").
const FastRTTLimit = 40 * time.Millisecond

// SingleRTTCeiling is the per-ping ceiling; exceeding it on any one probe
// forces SLOW regardless of the total, spec.md §4.5 ("any RTT exceeds ~1s").
const SingleRTTCeiling = time.Second

// ClassifySpeed applies the three-ping speed probe rule of spec.md §4.5 to
// the RTTs measured by the connector: any individual RTT over
// SingleRTTCeiling, or their sum over fastLimit, marks the link SLOW.
func ClassifySpeed(rtts []time.Duration, fastLimit time.Duration) LinkSpeed {
	var total time.Duration
	for _, rtt := range rtts {
		if rtt > SingleRTTCeiling {
			return SpeedSlow
		}
		total += rtt
	}
	if total > fastLimit {
		return SpeedSlow
	}
	return SpeedFast
}
