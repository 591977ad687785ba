package record

import (
	"sort"
	"strings"
)

// attrState is the three-state value a TXT key can hold, per RFC 6763 §6.4.
type attrState int

const (
	attrAbsent attrState = iota
	attrNoValue
	attrWithValue
)

type attrEntry struct {
	state attrState
	value []byte
}

// Attributes is the ordered set of TXT key/value pairs carried by a service
// instance's TXT record. Keys are matched case-insensitively; the first
// write for a given key wins, and empty keys are ignored, per RFC 6763 §6.3.
type Attributes struct {
	order []string // canonical (first-seen-case) keys, in insertion order
	byKey map[string]*attrEntry
}

// NewAttributes returns an empty set of attributes.
func NewAttributes() *Attributes {
	return &Attributes{
		byKey: make(map[string]*attrEntry),
	}
}

func (a *Attributes) lookupKey(k string) string {
	lk := strings.ToLower(k)
	for _, canon := range a.order {
		if strings.ToLower(canon) == lk {
			return canon
		}
	}
	return k
}

// Set associates k with value, present-with-value, and appends k. If k is
// already present (case-insensitively) the call is ignored: the first write
// wins. Empty keys are ignored.
func (a *Attributes) Set(k string, value []byte) {
	if k == "" {
		return
	}

	if a.Has(k) {
		return
	}

	a.order = append(a.order, k)
	if a.byKey == nil {
		a.byKey = make(map[string]*attrEntry)
	}
	a.byKey[strings.ToLower(k)] = &attrEntry{state: attrWithValue, value: value}
}

// SetPresent marks k as present-with-no-value. If k is already present
// (case-insensitively) the call is ignored: the first write wins. Empty keys
// are ignored.
func (a *Attributes) SetPresent(k string) {
	if k == "" {
		return
	}

	if a.Has(k) {
		return
	}

	a.order = append(a.order, k)
	if a.byKey == nil {
		a.byKey = make(map[string]*attrEntry)
	}
	a.byKey[strings.ToLower(k)] = &attrEntry{state: attrNoValue}
}

// Delete removes k, if present. After Delete, Has(k) returns false.
func (a *Attributes) Delete(k string) {
	lk := strings.ToLower(k)
	if _, ok := a.byKey[lk]; !ok {
		return
	}

	delete(a.byKey, lk)
	for i, canon := range a.order {
		if strings.ToLower(canon) == lk {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Has returns true if k is present, with or without a value.
func (a *Attributes) Has(k string) bool {
	_, ok := a.byKey[strings.ToLower(k)]
	return ok
}

// Get returns the value associated with k and true if k is present-with-value.
// If k is present-with-no-value or absent, ok is false.
func (a *Attributes) Get(k string) (value []byte, ok bool) {
	e, found := a.byKey[strings.ToLower(k)]
	if !found || e.state != attrWithValue {
		return nil, false
	}

	return e.value, true
}

// Keys returns the attribute keys in insertion order.
func (a *Attributes) Keys() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Pairs returns the length-prefixed-string representation of each key, in
// the exact form the TXT record wire format uses: a bare key when present-
// with-no-value, or "key=value" when present-with-value.
func (a *Attributes) Pairs() []string {
	pairs := make([]string, 0, len(a.order))

	for _, k := range a.order {
		e := a.byKey[strings.ToLower(k)]
		switch e.state {
		case attrNoValue:
			pairs = append(pairs, k)
		case attrWithValue:
			pairs = append(pairs, k+"="+string(e.value))
		}
	}

	return pairs
}

// SortedPairs returns Pairs() sorted lexically; useful for order-insensitive
// comparisons in tests.
func (a *Attributes) SortedPairs() []string {
	p := a.Pairs()
	sort.Strings(p)
	return p
}

// ParseAttributes decodes the TXT record strings ss (as already split from
// the wire's length-prefixed encoding by the codec) into an Attributes set.
// A string with no "=" is present-with-no-value (RFC 6763 §6.4); a string
// with "=" splits on the first occurrence, tolerating an empty value. Empty
// strings are ignored. Duplicate keys (case-insensitive): first write wins.
func ParseAttributes(ss []string) *Attributes {
	a := NewAttributes()

	for _, s := range ss {
		if s == "" {
			continue
		}

		if i := strings.IndexByte(s, '='); i >= 0 {
			k := s[:i]
			if k == "" || a.Has(k) {
				continue
			}
			a.Set(k, []byte(s[i+1:]))
		} else {
			if a.Has(s) {
				continue
			}
			a.SetPresent(s)
		}
	}

	return a
}
