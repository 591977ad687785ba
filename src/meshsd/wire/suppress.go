package wire

import (
	"time"

	"github.com/miekg/dns"

	"github.com/kestrel-oss/meshsd/src/meshsd/record"
)

// Suppressed implements the §4.1 answer-suppression rule: an answer for the
// given (name, type, class) carrying remaining is suppressed iff query's
// answer/authority/additional sections already contain a record with the
// same name (case-insensitive), type and class whose TTL is at least half
// of remaining.
func Suppressed(query *dns.Msg, name string, rtype, class uint16, remaining time.Duration) bool {
	half := remaining / 2

	for _, known := range allSections(query) {
		if !record.SameName(known.Header().Name, name) {
			continue
		}
		if !record.SameType(known.Header().Rrtype, rtype) {
			continue
		}
		if !record.SameClass(known.Header().Class, class) {
			continue
		}

		if time.Duration(known.Header().Ttl)*time.Second >= half {
			return true
		}
	}

	return false
}

func allSections(m *dns.Msg) []dns.RR {
	if m == nil {
		return nil
	}

	all := make([]dns.RR, 0, len(m.Answer)+len(m.Ns)+len(m.Extra))
	all = append(all, m.Answer...)
	all = append(all, m.Ns...)
	all = append(all, m.Extra...)
	return all
}
