// Package matchtype implements the per-room MatchType strategies of spec
// §4.4: head-to-head (a no-op) and team-versus (balanced two-team
// assignment and team-change requests). Room swaps strategies atomically on
// a MatchType change and replays OnJoin for every current user.
package matchtype

import (
	"sync"

	"github.com/hexwave/roomplay/internal/types"
)

// Member is the minimal view of a RoomUser a Strategy needs: its identity
// and its match-type-specific team assignment.
type Member interface {
	UserID() types.UserIdType
	TeamID() string
	SetTeamID(teamID string)
}

// Request is a match-type-specific user request dispatched by
// Room.SendMatchRequest once it has ruled out the countdown requests it
// handles itself.
type Request interface {
	RequestTag() string
}

// ChangeTeamRequest asks TeamVersus to move the caller to TeamID.
type ChangeTeamRequest struct {
	TeamID string
}

func (ChangeTeamRequest) RequestTag() string { return "change_team" }

// Strategy is a per-room collaborator invoked on membership changes and
// match-type-specific requests.
type Strategy interface {
	Kind() types.MatchType
	OnJoin(m Member)
	OnLeave(m Member)
	OnUserRequest(m Member, request Request) error
}

// New constructs the strategy for kind. Room calls this on room creation
// and on every MatchType change.
func New(kind types.MatchType) (Strategy, error) {
	switch kind {
	case types.MatchTypeHeadToHead:
		return NewHeadToHead(), nil
	case types.MatchTypeTeamVersus:
		return NewTeamVersus(), nil
	default:
		return nil, types.ErrInvalidState
	}
}

// HeadToHead is the default, team-less strategy: every hook is a no-op and
// requests are rejected since head-to-head has none of its own.
type HeadToHead struct{}

func NewHeadToHead() HeadToHead { return HeadToHead{} }

func (HeadToHead) Kind() types.MatchType              { return types.MatchTypeHeadToHead }
func (HeadToHead) OnJoin(Member)                       {}
func (HeadToHead) OnLeave(Member)                      {}
func (HeadToHead) OnUserRequest(Member, Request) error { return types.ErrInvalidState }

const (
	TeamA = "team_a"
	TeamB = "team_b"
)

// TeamVersus maintains two fixed teams, assigning each new member to the
// smaller one and breaking size ties in favor of TeamA.
type TeamVersus struct {
	mu    sync.Mutex
	teams map[string]map[types.UserIdType]Member
}

func NewTeamVersus() *TeamVersus {
	return &TeamVersus{
		teams: map[string]map[types.UserIdType]Member{
			TeamA: {},
			TeamB: {},
		},
	}
}

func (s *TeamVersus) Kind() types.MatchType { return types.MatchTypeTeamVersus }

// smallerTeam must be called with s.mu held.
func (s *TeamVersus) smallerTeam() string {
	if len(s.teams[TeamA]) <= len(s.teams[TeamB]) {
		return TeamA
	}
	return TeamB
}

func (s *TeamVersus) OnJoin(m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	team := s.smallerTeam()
	s.teams[team][m.UserID()] = m
	m.SetTeamID(team)
}

func (s *TeamVersus) OnLeave(m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if members, ok := s.teams[m.TeamID()]; ok {
		delete(members, m.UserID())
	}
}

func (s *TeamVersus) OnUserRequest(m Member, request Request) error {
	change, ok := request.(ChangeTeamRequest)
	if !ok {
		return types.ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.teams[change.TeamID]
	if !ok {
		return types.ErrInvalidState
	}

	if current, ok := s.teams[m.TeamID()]; ok {
		delete(current, m.UserID())
	}
	members[m.UserID()] = m
	m.SetTeamID(change.TeamID)
	return nil
}

// TeamSize returns the current member count of teamID, for tests and
// diagnostics.
func (s *TeamVersus) TeamSize(teamID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.teams[teamID])
}
