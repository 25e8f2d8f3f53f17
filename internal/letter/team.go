package letter

import (
	"strings"

	"surat/internal/domain"
)

// FirstMemberSeq is the sequence number of the first non-leader member.
const FirstMemberSeq = 2

// Renumber assigns contiguous sequence numbers starting at FirstMemberSeq,
// keeping slice order.
func Renumber(members []domain.Member) []domain.Member {
	out := make([]domain.Member, len(members))
	for i, m := range members {
		m.Seq = FirstMemberSeq + i
		out[i] = m
	}
	return out
}

// RemoveMember drops the member at index k and renumbers the rest.
// An out-of-range index returns the members renumbered but otherwise unchanged.
func RemoveMember(members []domain.Member, k int) []domain.Member {
	if k < 0 || k >= len(members) {
		return Renumber(members)
	}
	rest := make([]domain.Member, 0, len(members)-1)
	rest = append(rest, members[:k]...)
	rest = append(rest, members[k+1:]...)
	return Renumber(rest)
}

// compactMembers trims fields, drops rows without a name and renumbers.
func compactMembers(in []MemberInput) []domain.Member {
	var out []domain.Member
	for _, m := range in {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		out = append(out, domain.Member{
			Name:       name,
			EmployeeID: strings.TrimSpace(m.EmployeeID),
			Rank:       strings.TrimSpace(m.Rank),
			Department: strings.TrimSpace(m.Department),
		})
	}
	return Renumber(out)
}
