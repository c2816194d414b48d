package models

import (
	"encoding/json"
	"slices"
	"strings"
)

// DefaultParticipantDomain is appended to participant ids that carry no domain.
const DefaultParticipantDomain = "s.whatsapp.net"

// NormalizeParticipant returns the canonical form of a participant id: the device suffix (":N")
// is stripped from the local part and domain is appended when the id has none.
//
// An empty domain falls back to [DefaultParticipantDomain]. Blank input yields "".
func NormalizeParticipant(id, domain string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}

	local, host, _ := strings.Cut(id, "@")
	local, _, _ = strings.Cut(local, ":")
	local = strings.TrimPrefix(strings.TrimSpace(local), "+")
	if local == "" {
		return ""
	}

	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		host = domain
	}
	if host == "" {
		host = DefaultParticipantDomain
	}
	return local + "@" + host
}

// NormalizeParticipants normalizes ids, dropping blanks and duplicates while keeping first-seen order.
func NormalizeParticipants(ids []string, domain string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		n := NormalizeParticipant(id, domain)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// ParticipantSet is a set of normalized participant ids.
//
// It serializes as a sorted JSON array so the persisted document is stable.
type ParticipantSet map[string]struct{}

// NewParticipantSet builds a set from ids as given.
func NewParticipantSet(ids ...string) ParticipantSet {
	s := make(ParticipantSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id and reports whether it was newly added.
func (s ParticipantSet) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s ParticipantSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s ParticipantSet) Len() int { return len(s) }

// Slice returns the members in sorted order.
func (s ParticipantSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// SubsetOf reports whether every member of s is in other.
func (s ParticipantSet) SubsetOf(other ParticipantSet) bool {
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

func (s ParticipantSet) Clone() ParticipantSet {
	out := make(ParticipantSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s ParticipantSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *ParticipantSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewParticipantSet(ids...)
	return nil
}
