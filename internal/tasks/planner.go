package tasks

import (
	"github.com/desertthunder/regroup/internal/models"
)

// PlanInput is the membership of a source group and the ids to leave behind.
type PlanInput struct {
	Members     []string
	Admins      []string
	Excludes    []string
	BotID       string
	InitiatorID string
	Domain      string // participant domain for ids without one
}

// PlanResult is the ordered invite list and the effective exclusion set.
type PlanResult struct {
	Members  []string
	Excluded []string // sorted
}

// PlanMembers computes who to invite.
//
// Admins and explicit excludes are left out, except the bot and the initiator, which are never
// excluded and are appended when missing from the member list. Output keeps input order and is
// normalized and de-duplicated.
func PlanMembers(in PlanInput) PlanResult {
	bot := models.NormalizeParticipant(in.BotID, in.Domain)
	initiator := models.NormalizeParticipant(in.InitiatorID, in.Domain)

	excluded := models.NewParticipantSet(models.NormalizeParticipants(in.Admins, in.Domain)...)
	for _, id := range models.NormalizeParticipants(in.Excludes, in.Domain) {
		excluded.Add(id)
	}
	delete(excluded, bot)
	delete(excluded, initiator)
	delete(excluded, "")

	var members []string
	seen := models.NewParticipantSet()
	for _, id := range models.NormalizeParticipants(in.Members, in.Domain) {
		if excluded.Has(id) {
			continue
		}
		members = append(members, id)
		seen.Add(id)
	}

	for _, id := range []string{bot, initiator} {
		if id != "" && seen.Add(id) {
			members = append(members, id)
		}
	}

	return PlanResult{Members: members, Excluded: excluded.Slice()}
}
