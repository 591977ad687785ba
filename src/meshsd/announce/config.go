package announce

import "time"

// Config holds the timing parameters for probing, announcing and
// cancelling, per spec.md §4.5/§4.6 and the §6 configuration table.
type Config struct {
	ProbeNum             int
	ProbingInterval      time.Duration
	ProbingTimeout       time.Duration
	AnnouncementNum      int
	AnnouncementInterval time.Duration
	CancelNum            int
	CancellingInterval   time.Duration
}

// DefaultConfig returns the defaults named in spec.md §4.5/§4.6/§6. The
// spec leaves the announcement count/interval undocumented beyond "use
// ANNOUNCEMENT_NUM at ANNOUNCEMENT_INTERVAL"; 2×1s is RFC 6762 §8.3's own
// suggested announcement cadence, recorded as an Open Question decision.
func DefaultConfig() Config {
	return Config{
		ProbeNum:             3,
		ProbingInterval:      250 * time.Millisecond,
		ProbingTimeout:       6 * time.Second,
		AnnouncementNum:      2,
		AnnouncementInterval: 1 * time.Second,
		CancelNum:            3,
		CancellingInterval:   250 * time.Millisecond,
	}
}
