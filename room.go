package main

import (
	"sync"
	"time"
)

// Member is a participant's connection-scoped identity within a room.
// Username is set at join time and immutable for that connection.
// Vote is present only while the member has voted in the current round.
type Member struct {
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
	IsHost       bool   `json:"isHost"`
	Vote         *Card  `json:"vote,omitempty"`
}

// Round is one voting cycle. Vote data is retained after the round ends
// so late readers can still see final votes; it is cleared when the next
// round starts.
type Round struct {
	votes  map[string]Card
	active bool
}

// RoundSnapshot lets a late or rejoining client resynchronize with a
// round that is in progress or just ended.
type RoundSnapshot struct {
	Active bool         `json:"active"`
	Votes  []MemberVote `json:"votes"`
}

type MembersMessage struct {
	Type    string   `json:"type"` // "members_updated" or "member_left"
	Members []Member `json:"members"`
}

type RoundStartedMessage struct {
	Type string `json:"type"` // "round_started"
}

type RoundProgressMessage struct {
	Type       string `json:"type"` // "round_progress"
	VotedCount int    `json:"votedCount"`
	TotalCount int    `json:"totalCount"`
}

// JoinResult is the acknowledgement payload for a successful join.
type JoinResult struct {
	Members []Member
	IsHost  bool
	Round   *RoundSnapshot
}

// Room holds one estimation session: its members in join order, the
// current host, and the active round if any. Every mutating operation
// holds mu across both the mutation and the broadcast enqueue, so
// fan-out always reflects post-mutation state in application order.
type Room struct {
	id        string
	createdAt time.Time
	registry  *Registry

	mu         sync.RWMutex
	lastActive time.Time
	clients    map[*Client]bool
	members    []*Member
	hostID     string
	round      *Round
}

func newRoom(id string, registry *Registry) *Room {
	now := time.Now()
	return &Room{
		id:         id,
		createdAt:  now,
		registry:   registry,
		lastActive: now,
		clients:    make(map[*Client]bool),
	}
}

// Join adds (or refreshes) the member for this connection and subscribes
// the client to the room's broadcasts. The first member ever added
// becomes host; everyone after is not.
func (r *Room) Join(cfg *Config, c *Client, username string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()
	r.clients[c] = true

	member := r.memberLocked(c.connID)
	if member == nil {
		member = &Member{
			ConnectionID: c.connID,
			Username:     username,
		}
		r.members = append(r.members, member)
		logf(cfg, "GAMES: Member %q joined %s", username, r.id)
	} else {
		member.Username = username
	}

	if r.hostID == "" {
		r.hostID = c.connID
		member.IsHost = true
	}

	result := JoinResult{
		Members: r.membersSnapshotLocked(),
		IsHost:  member.IsHost,
	}

	if r.round != nil {
		result.Round = &RoundSnapshot{
			Active: r.round.active,
			Votes:  r.votesSnapshotLocked(),
		}
	}

	r.broadcastLocked(MembersMessage{
		Type:    "members_updated",
		Members: result.Members,
	})

	return result
}

// StartRound begins a new voting round: every member's vote is cleared
// and any prior round's data is replaced.
func (r *Room) StartRound(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	if c.connID != r.hostID {
		return ErrNotHost
	}

	for _, m := range r.members {
		m.Vote = nil
	}
	r.round = &Round{
		votes:  make(map[string]Card),
		active: true,
	}

	r.broadcastLocked(RoundStartedMessage{Type: "round_started"})
	r.broadcastLocked(MembersMessage{
		Type:    "members_updated",
		Members: r.membersSnapshotLocked(),
	})

	return nil
}

// SubmitVote records a vote for this connection. Votes outside an
// active round are ignored. A vote that fills the last empty slot
// completes the round immediately.
func (r *Room) SubmitVote(c *Client, value string) error {
	card, ok := parseCard(value)
	if !ok {
		return ErrInvalidVote
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	if r.round == nil || !r.round.active {
		return nil
	}

	member := r.memberLocked(c.connID)
	if member == nil {
		return nil
	}

	member.Vote = &card
	r.round.votes[c.connID] = card

	r.broadcastLocked(MembersMessage{
		Type:    "members_updated",
		Members: r.membersSnapshotLocked(),
	})

	voted := r.votedCountLocked()
	if voted == len(r.members) {
		r.completeRoundLocked()
	} else {
		r.broadcastLocked(RoundProgressMessage{
			Type:       "round_progress",
			VotedCount: voted,
			TotalCount: len(r.members),
		})
	}

	return nil
}

// EndRound forces completion with whatever votes are present, the
// host's escape hatch for unresponsive members.
func (r *Room) EndRound(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	if c.connID != r.hostID {
		return ErrNotHost
	}

	if r.round == nil {
		r.round = &Round{votes: make(map[string]Card)}
	}
	r.completeRoundLocked()

	return nil
}

// Leave removes this connection's member and vote. The last member out
// deletes the room; otherwise the host role moves to the earliest-joined
// remaining member, and an active round is re-checked for completion
// against the smaller member set.
func (r *Room) Leave(c *Client) {
	r.mu.Lock()

	r.lastActive = time.Now()
	delete(r.clients, c)

	removed := false
	dst := r.members[:0]
	for _, m := range r.members {
		if m.ConnectionID == c.connID {
			removed = true
			continue
		}
		dst = append(dst, m)
	}
	r.members = dst

	if !removed {
		r.mu.Unlock()
		return
	}

	if r.round != nil {
		delete(r.round.votes, c.connID)
	}

	if len(r.members) == 0 {
		r.mu.Unlock()
		r.registry.Delete(r.id)
		return
	}

	if c.connID == r.hostID {
		r.hostID = r.members[0].ConnectionID
		r.members[0].IsHost = true
	}

	r.broadcastLocked(MembersMessage{
		Type:    "member_left",
		Members: r.membersSnapshotLocked(),
	})

	if r.round != nil && r.round.active && r.votedCountLocked() == len(r.members) {
		r.completeRoundLocked()
	}

	r.mu.Unlock()
}

// completeRoundLocked marks the round inactive and broadcasts the
// aggregate result. The round is deactivated before the broadcast is
// queued, so it fires at most once per round.
func (r *Room) completeRoundLocked() {
	r.round.active = false
	r.broadcastLocked(computeResult(r.votesSnapshotLocked()))
}

func (r *Room) memberLocked(connID string) *Member {
	for _, m := range r.members {
		if m.ConnectionID == connID {
			return m
		}
	}
	return nil
}

func (r *Room) votedCountLocked() int {
	count := 0
	for _, m := range r.members {
		if m.Vote != nil {
			count++
		}
	}
	return count
}

func (r *Room) membersSnapshotLocked() []Member {
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, *m)
	}
	return out
}

// votesSnapshotLocked lists recorded votes in member join order.
// Members who left mid-round keep no entry; members who have not voted
// are omitted.
func (r *Room) votesSnapshotLocked() []MemberVote {
	out := make([]MemberVote, 0, len(r.round.votes))
	for _, m := range r.members {
		if card, ok := r.round.votes[m.ConnectionID]; ok {
			out = append(out, MemberVote{
				Username: m.Username,
				Vote:     card,
			})
		}
	}
	return out
}

func (r *Room) broadcastLocked(msg any) {
	for client := range r.clients {
		select {
		case client.send <- msg:
		default:
			delete(r.clients, client)
			client.closeSend()
		}
	}
}

// closeAll disconnects all clients of this room (used by reaper).
func (r *Room) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.clients {
		c.closeSend()
		_ = c.conn.Close()
		delete(r.clients, c)
	}
}
