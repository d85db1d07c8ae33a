// Package roster keeps a room's players in join order.
//
// A Roster is owned by exactly one room actor and is not safe for
// concurrent use.
package roster

import (
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/textnorm"
)

const MaxNameLen = 20

type Player struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Score      int            `json:"score"`
	Connected  bool           `json:"isConnected"`
	Eliminated bool           `json:"isEliminated"`
	JoinSeq    int            `json:"joinOrder"`
	Counters   map[string]int `json:"counters,omitempty"`
}

func (p *Player) clone() *Player {
	c := *p
	if p.Counters != nil {
		c.Counters = make(map[string]int, len(p.Counters))
		for k, v := range p.Counters {
			c.Counters[k] = v
		}
	}
	return &c
}

type Roster struct {
	max     int
	nextSeq int
	order   []string
	byID    map[string]*Player
}

// New returns an empty roster admitting at most max players; max <= 0 means unbounded.
func New(max int) *Roster {
	return &Roster{max: max, byID: make(map[string]*Player)}
}

// Add registers a new connected player under a fresh opaque id.
func (r *Roster) Add(name string) (*Player, error) {
	name = textnorm.Clean(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if r.max > 0 && len(r.order) >= r.max {
		return nil, apperr.ErrRoomFull
	}
	key := textnorm.Fold(name)
	for _, id := range r.order {
		if textnorm.Fold(r.byID[id].Name) == key {
			return nil, apperr.ErrNameTaken
		}
	}
	r.nextSeq++
	p := &Player{
		ID:        uuid.NewString(),
		Name:      name,
		Connected: true,
		JoinSeq:   r.nextSeq,
	}
	r.order = append(r.order, p.ID)
	r.byID[p.ID] = p
	return p, nil
}

func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return apperr.Invalid("name is required")
	}
	if n > MaxNameLen {
		return apperr.Invalid("name longer than %d characters", MaxNameLen)
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return apperr.Invalid("name contains unprintable characters")
		}
	}
	return nil
}

func (r *Roster) Get(id string) (*Player, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Roster) Remove(id string) (*Player, bool) {
	p, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p, true
}

func (r *Roster) Len() int { return len(r.order) }

// Players returns the live players in join order.
func (r *Roster) Players() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Snapshot returns deep copies in join order, safe to hand to other goroutines.
func (r *Roster) Snapshot() []Player {
	out := make([]Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id].clone())
	}
	return out
}

// ConnectedCount counts players with a live connection.
func (r *Roster) ConnectedCount() int {
	n := 0
	for _, id := range r.order {
		if r.byID[id].Connected {
			n++
		}
	}
	return n
}

// ResetForGame clears per-game flags before a new mini-game starts. Scores carry over.
func (r *Roster) ResetForGame() {
	for _, p := range r.byID {
		p.Eliminated = false
		p.Counters = nil
	}
}

// Count adds delta to one of the player's per-game counters.
func (r *Roster) Count(id, counter string, delta int) error {
	p, ok := r.byID[id]
	if !ok {
		return apperr.ErrUnknownPlayer
	}
	if p.Counters == nil {
		p.Counters = make(map[string]int)
	}
	p.Counters[counter] += delta
	return nil
}

func (r *Roster) Eliminate(id string) error {
	p, ok := r.byID[id]
	if !ok {
		return apperr.ErrUnknownPlayer
	}
	p.Eliminated = true
	return nil
}
