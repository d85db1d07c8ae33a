// Package arbiter decides who acts next when several players press at once.
//
// Ordering is the order calls reach the room actor, which serialises every
// input for a room. Client timestamps are never consulted.
package arbiter

import (
	"slices"
	"time"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
)

// Mode controls what Select does to the players still waiting.
type Mode int

const (
	// ClearSelected removes only the chosen player; the rest keep their place.
	ClearSelected Mode = iota
	// ClearAll empties the queue once someone is chosen.
	ClearAll
)

// Queue is a FIFO buzzer queue with at most one active answerer.
// The zero value is ready to use.
type Queue struct {
	Order     []string             `json:"order"`
	Active    string               `json:"active,omitempty"`
	Cooldowns map[string]time.Time `json:"cooldowns,omitempty"`
}

// Buzz appends id and returns its 1-based position. Buzzing again while
// queued returns the existing position.
func (q *Queue) Buzz(id string, now time.Time) (int, error) {
	if until, ok := q.Cooldowns[id]; ok {
		if now.Before(until) {
			return 0, &apperr.CooldownError{Until: until, Remaining: until.Sub(now)}
		}
		delete(q.Cooldowns, id)
	}
	if id == q.Active {
		return 0, apperr.Phase("already answering")
	}
	if pos := q.Position(id); pos > 0 {
		return pos, nil
	}
	q.Order = append(q.Order, id)
	return len(q.Order), nil
}

// Position is 1-based; 0 means not queued.
func (q *Queue) Position(id string) int {
	return slices.Index(q.Order, id) + 1
}

// Select makes id the active answerer.
func (q *Queue) Select(id string, mode Mode) error {
	if q.Active != "" {
		return apperr.Phase("an answer is already pending")
	}
	pos := q.Position(id)
	if pos == 0 {
		return apperr.Invalid("player has not buzzed")
	}
	if mode == ClearAll {
		q.Order = nil
	} else {
		q.Order = slices.Delete(q.Order, pos-1, pos)
	}
	q.Active = id
	return nil
}

// Resolve ends the active answer. A wrong answer with a positive cooldown
// locks the answerer out until now+cooldown. The rest of the queue is kept.
func (q *Queue) Resolve(correct bool, now time.Time, cooldown time.Duration) (string, bool) {
	id := q.Active
	if id == "" {
		return "", false
	}
	q.Active = ""
	if !correct && cooldown > 0 {
		q.Penalize(id, now.Add(cooldown))
	}
	return id, true
}

func (q *Queue) Penalize(id string, until time.Time) {
	if q.Cooldowns == nil {
		q.Cooldowns = make(map[string]time.Time)
	}
	q.Cooldowns[id] = until
}

// Remove drops id from the queue and releases it if it was answering.
func (q *Queue) Remove(id string) bool {
	removed := false
	if pos := q.Position(id); pos > 0 {
		q.Order = slices.Delete(q.Order, pos-1, pos)
		removed = true
	}
	if q.Active == id {
		q.Active = ""
		removed = true
	}
	return removed
}

// Reset clears waiting players, the active answerer and every cooldown.
func (q *Queue) Reset() {
	q.Order = nil
	q.Active = ""
	q.Cooldowns = nil
}

func (q Queue) Clone() Queue {
	c := Queue{Order: slices.Clone(q.Order), Active: q.Active}
	if q.Cooldowns != nil {
		c.Cooldowns = make(map[string]time.Time, len(q.Cooldowns))
		for k, v := range q.Cooldowns {
			c.Cooldowns[k] = v
		}
	}
	return c
}
