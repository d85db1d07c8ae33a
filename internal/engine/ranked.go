package engine

import (
	"cmp"
	"slices"
	"strconv"
	"time"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

// Ranked ordering: every player locks one ordering of the same shuffled
// cards. Only the first lock of a round counts; the round is revealed on
// the timer, by the host, or once every active player has locked.
const PhaseSorting Phase = "sorting"

const (
	defaultUnitPoints = 10
	minSortItems      = 2
	maxSortItems      = 12
)

func init() {
	for _, id := range []GameID{GameTimelineSort, GameSizeSort} {
		register(id, Rules{
			Family: FamilyRanked,
			Start:  startRanked(id),
			Host:   rankedHost,
			Player: rankedPlayer,
			Tick:   rankedTick,
		})
	}
}

type sortItem struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Media string  `json:"media,omitempty"`
	Value float64 `json:"value"`
}

type sortSet struct {
	Prompt string     `json:"prompt"`
	Items  []sortItem `json:"items"`
}

type rankedConfig struct {
	baseConfig
	Sets          []sortSet `json:"sets"`
	Descending    bool      `json:"descending"`
	PointsPerUnit int       `json:"pointsPerUnit"`
}

type lockResult struct {
	PlayerID string `json:"playerId"`
	Units    int    `json:"units"`
	Points   int    `json:"points"`
	Exact    bool   `json:"exact"`
}

type rankedState struct {
	Sets      []sortSet
	Truth     [][]string // correct id order per round
	Shown     [][]string // shuffled id order per round
	Locks     map[string][]string
	LockOrder []string
	Results   []lockResult
	UnitPts   int
	OpenedAt  time.Time
	Timer     time.Duration
}

func (st *rankedState) Clone() Payload {
	c := *st
	c.Locks = make(map[string][]string, len(st.Locks))
	for id, order := range st.Locks {
		c.Locks[id] = slices.Clone(order)
	}
	c.LockOrder = slices.Clone(st.LockOrder)
	c.Results = slices.Clone(st.Results)
	return &c
}

type rankedItemView struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Media string   `json:"media,omitempty"`
	Value *float64 `json:"value,omitempty"`
}

type rankedView struct {
	Prompt     string              `json:"prompt"`
	Items      []rankedItemView    `json:"items"`
	Rounds     int                 `json:"rounds"`
	LockedIDs  []string            `json:"lockedIds"`
	MyOrder    []string            `json:"myOrder,omitempty"`
	Truth      []string            `json:"solution,omitempty"`
	Locks      map[string][]string `json:"locks,omitempty"`
	Results    []lockResult        `json:"results,omitempty"`
	DeadlineMs int64               `json:"deadlineMs,omitempty"`
}

func (st *rankedState) View(phase Phase, round int, v Viewer) any {
	set := st.Sets[round]
	byID := make(map[string]sortItem, len(set.Items))
	for _, it := range set.Items {
		byID[it.ID] = it
	}
	revealed := phase != PhaseSorting
	view := rankedView{
		Prompt:    set.Prompt,
		Rounds:    len(st.Sets),
		LockedIDs: slices.Clone(st.LockOrder),
		MyOrder:   slices.Clone(st.Locks[v.PlayerID]),
	}
	for _, id := range st.Shown[round] {
		it := byID[id]
		iv := rankedItemView{ID: it.ID, Label: it.Label, Media: it.Media}
		if v.Host || revealed {
			val := it.Value
			iv.Value = &val
		}
		view.Items = append(view.Items, iv)
	}
	if v.Host || revealed {
		view.Truth = slices.Clone(st.Truth[round])
	}
	if revealed {
		view.Results = slices.Clone(st.Results)
		view.Locks = make(map[string][]string, len(st.Locks))
		for id, order := range st.Locks {
			view.Locks[id] = slices.Clone(order)
		}
	} else {
		view.DeadlineMs = st.OpenedAt.Add(st.Timer).UnixMilli()
	}
	return view
}

func startRanked(id GameID) func([]byte, Env) (State, []Effect, error) {
	return func(raw []byte, env Env) (State, []Effect, error) {
		cfg, err := decode[rankedConfig](raw)
		if err != nil {
			return State{}, nil, err
		}
		if err := cfg.validate(); err != nil {
			return State{}, nil, err
		}
		if len(cfg.Sets) == 0 {
			return State{}, nil, apperr.Invalid("at least one set of items is required")
		}
		if cfg.PointsPerUnit <= 0 {
			cfg.PointsPerUnit = defaultUnitPoints
		}
		st := &rankedState{
			Sets:    cfg.Sets,
			Locks:   map[string][]string{},
			UnitPts: cfg.PointsPerUnit,
			Timer:   cfg.timer(env.Settings.SortTimer),
		}
		r := env.rng()
		for i := range st.Sets {
			set := &st.Sets[i]
			if n := len(set.Items); n < minSortItems || n > maxSortItems {
				return State{}, nil, apperr.Invalid("set %d needs %d-%d items", i, minSortItems, maxSortItems)
			}
			for j := range set.Items {
				if set.Items[j].Label == "" && set.Items[j].Media == "" {
					return State{}, nil, apperr.Invalid("set %d item %d needs a label or media", i, j)
				}
				set.Items[j].ID = strconv.Itoa(j)
			}
			truth := slices.Clone(set.Items)
			slices.SortStableFunc(truth, func(a, b sortItem) int {
				if cfg.Descending {
					return cmp.Compare(b.Value, a.Value)
				}
				return cmp.Compare(a.Value, b.Value)
			})
			ids := make([]string, len(truth))
			for j, it := range truth {
				ids[j] = it.ID
			}
			st.Truth = append(st.Truth, ids)

			shown := slices.Clone(ids)
			for slices.Equal(shown, ids) {
				r.Shuffle(len(shown), func(a, b int) { shown[a], shown[b] = shown[b], shown[a] })
			}
			st.Shown = append(st.Shown, shown)
		}
		s := State{Game: id, Phase: PhaseSorting, Payload: st}
		return s, st.open(s, env), nil
	}
}

func (st *rankedState) open(s State, env Env) []Effect {
	st.OpenedAt = env.Now
	return []Effect{
		schedule(TimerRound, st.Timer),
		emit(protocol.GameRoundStarted, map[string]any{
			"roundIndex": s.Round,
			"rounds":     len(st.Sets),
			"deadlineMs": env.Now.Add(st.Timer).UnixMilli(),
		}),
	}
}

// rankUnits scores a locked order against the truth: two units for every
// item in its exact place and one for an item a single place away. A
// perfect order of n items is worth 2n; one adjacent swap 2(n-2)+2.
func rankUnits(order, truth []string) int {
	pos := make(map[string]int, len(truth))
	for i, id := range truth {
		pos[id] = i
	}
	units := 0
	for i, id := range order {
		want, ok := pos[id]
		if !ok {
			continue
		}
		switch d := i - want; {
		case d == 0:
			units += 2
		case d == 1 || d == -1:
			units++
		}
	}
	return units
}

type lockData struct {
	Order []string `json:"order"`
}

func rankedPlayer(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*rankedState)
	if a.Name != "lock" {
		return s, nil, unknownAction(s, a.Name)
	}
	if err := expectPhase(s, PhaseSorting); err != nil {
		return s, nil, err
	}
	if err := requireActive(env, a.PlayerID); err != nil {
		return s, nil, err
	}
	if _, done := st.Locks[a.PlayerID]; done {
		return s, nil, apperr.Phase("order already locked")
	}
	d, err := decode[lockData](a.Data)
	if err != nil {
		return s, nil, err
	}
	truth := st.Truth[s.Round]
	if len(d.Order) != len(truth) {
		return s, nil, apperr.Invalid("order must list all %d items", len(truth))
	}
	if !slices.Equal(slices.Sorted(slices.Values(d.Order)), slices.Sorted(slices.Values(truth))) {
		return s, nil, apperr.Invalid("order must use every item exactly once")
	}
	st.Locks[a.PlayerID] = slices.Clone(d.Order)
	st.LockOrder = append(st.LockOrder, a.PlayerID)

	effects := []Effect{
		reply(map[string]any{"locked": true}),
		emit(protocol.GameOrderLocked, map[string]any{
			"playerId": a.PlayerID,
			"locked":   len(st.LockOrder),
			"total":    len(env.Active()),
		}),
	}
	if st.allLocked(env) {
		var more []Effect
		s, more = st.reveal(s)
		effects = append(effects, more...)
	}
	return s, effects, nil
}

func (st *rankedState) allLocked(env Env) bool {
	active := env.Active()
	if len(active) == 0 {
		return false
	}
	for _, p := range active {
		if _, ok := st.Locks[p.ID]; !ok {
			return false
		}
	}
	return true
}

func (st *rankedState) reveal(s State) (State, []Effect) {
	truth := st.Truth[s.Round]
	s.Phase = PhaseRevealed
	st.Results = nil
	effects := []Effect{cancel(TimerRound)}
	for _, id := range st.LockOrder {
		units := rankUnits(st.Locks[id], truth)
		res := lockResult{
			PlayerID: id,
			Units:    units,
			Points:   units * st.UnitPts,
			Exact:    units == 2*len(truth),
		}
		st.Results = append(st.Results, res)
		if res.Points > 0 {
			effects = append(effects, award(id, res.Points))
		}
		if res.Exact {
			effects = append(effects, count(id, "correct", 1))
		}
	}
	return s, append(effects, emit(protocol.GameReveal, map[string]any{
		"roundIndex": s.Round,
		"solution":   slices.Clone(truth),
		"results":    slices.Clone(st.Results),
	}))
}

func rankedHost(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*rankedState)
	switch a.Name {
	case "reveal":
		if err := expectPhase(s, PhaseSorting); err != nil {
			return s, nil, err
		}
		s, effects := st.reveal(s)
		return s, effects, nil
	case "next":
		if err := expectPhase(s, PhaseRevealed); err != nil {
			return s, nil, err
		}
		if s.Round+1 >= len(st.Sets) {
			s, effects := finishGame(s, nil)
			return s, effects, nil
		}
		s.Round++
		s.Phase = PhaseSorting
		clear(st.Locks)
		st.LockOrder, st.Results = nil, nil
		return s, st.open(s, env), nil
	}
	return s, nil, unknownAction(s, a.Name)
}

func rankedTick(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*rankedState)
	switch a.Name {
	case TimerRound:
		if err := expectPhase(s, PhaseSorting); err != nil {
			return s, nil, err
		}
		s, effects := st.reveal(s)
		return s, effects, nil
	case TimerRoster:
		if s.Phase != PhaseSorting || !st.allLocked(env) {
			return s, nil, apperr.Phase("nothing to update")
		}
		s, effects := st.reveal(s)
		return s, effects, nil
	}
	return s, nil, unknownAction(s, a.Name)
}
