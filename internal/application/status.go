package application

import (
	"time"
	"unicode/utf8"
)

// ComputeStatus derives the time status of a session from its bounds. It
// depends only on its arguments; status is never stored.
func ComputeStatus(start, end, now time.Time) TimeStatus {
	switch {
	case now.Before(start):
		return StatusUpcoming
	case now.Before(end):
		return StatusOngoing
	default:
		return StatusPast
	}
}

// Status returns the session's status at now.
func (s Session) Status(now time.Time) TimeStatus {
	return ComputeStatus(s.Start, s.End, now)
}

// CapabilitiesFor decides every session affordance for principal at once.
// Creators never hold a membership row, so isMember is always false for them.
func CapabilitiesFor(principal Principal, session Session, isMember bool, attendeeCount int, now time.Time) Capabilities {
	authenticated := principal.Authenticated()
	isCreator := authenticated && principal.ActorID == session.CreatorID
	open := !session.IsCancelled && session.Status(now) != StatusPast

	return Capabilities{
		CanEdit:    isCreator && open,
		CanCancel:  isCreator && open,
		CanDelete:  isCreator,
		CanJoin:    authenticated && !isCreator && !isMember && open && attendeeCount < session.AttendeeLimit,
		CanLeave:   authenticated && isMember,
		CanComment: authenticated,
	}
}

const snippetLength = 50

// textSnippet returns the first runes of a session body for listings.
func textSnippet(body string) string {
	if utf8.RuneCountInString(body) <= snippetLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:snippetLength])
}
