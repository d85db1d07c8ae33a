package engine

import (
	"maps"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/textnorm"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

// Word hunt: everyone races to spell words from one set of letter tiles.
// The first finder of a word scores it; later finders are told they found
// it too but earn nothing, and the room-wide count per word length only
// moves for words nobody had found yet.
const PhaseHunting Phase = "hunting"

const (
	defaultTileCount  = 16
	defaultMinWordLen = 3
	maxTileCount      = 25
	maxFoundPerPlayer = 300
)

const (
	tileVowels     = "aeiou"
	tileConsonants = "bcdfghklmnprstwy"
)

func init() {
	register(GameWordHunt, Rules{
		Family: FamilyFreeForAll,
		Start:  startWordHunt,
		Host:   huntHost,
		Player: huntPlayer,
		Tick:   huntTick,
	})
}

type huntConfig struct {
	baseConfig
	Letters    string   `json:"letters"`
	MinLength  int      `json:"minLength"`
	ExtraWords []string `json:"extraWords"`
	AcceptAny  bool     `json:"acceptAny"`
}

type huntState struct {
	Tiles     []rune
	MinLen    int
	Extra     map[string]bool
	AcceptAny bool
	// Finders maps each word to the players who found it, first finder first.
	Finders  map[string][]string
	Found    map[string][]string // per player, in submission order
	ByLength map[int]int
	OpenedAt time.Time
	Timer    time.Duration
}

func (st *huntState) Clone() Payload {
	c := *st
	c.Tiles = slices.Clone(st.Tiles)
	c.Finders = make(map[string][]string, len(st.Finders))
	for w, ids := range st.Finders {
		c.Finders[w] = slices.Clone(ids)
	}
	c.Found = make(map[string][]string, len(st.Found))
	for id, ws := range st.Found {
		c.Found[id] = slices.Clone(ws)
	}
	c.ByLength = maps.Clone(st.ByLength)
	return &c
}

type huntView struct {
	Letters    string         `json:"letters"`
	MinLength  int            `json:"minLength"`
	DeadlineMs int64          `json:"deadlineMs"`
	ByLength   map[int]int    `json:"countsByLength"`
	MyWords    []string       `json:"myWords,omitempty"`
	Words      map[string]any `json:"words,omitempty"`
}

func (st *huntState) View(phase Phase, _ int, v Viewer) any {
	view := huntView{
		Letters:    string(st.Tiles),
		MinLength:  st.MinLen,
		DeadlineMs: st.OpenedAt.Add(st.Timer).UnixMilli(),
		ByLength:   maps.Clone(st.ByLength),
	}
	if !v.Host {
		view.MyWords = slices.Clone(st.Found[v.PlayerID])
	}
	if v.Host || phase == PhaseFinished {
		view.Words = make(map[string]any, len(st.Finders))
		for w, ids := range st.Finders {
			view.Words[w] = map[string]any{"finderIds": slices.Clone(ids), "points": wordPoints(utf8.RuneCountInString(w))}
		}
	}
	return view
}

// wordPoints scores a word by length: 3 letters 100, 4 400, 5 800 and
// 1400 for six, plus 400 for every letter beyond.
func wordPoints(n int) int {
	switch {
	case n < 3:
		return 0
	case n == 3:
		return 100
	case n == 4:
		return 400
	case n == 5:
		return 800
	}
	return 1400 + 400*(n-6)
}

func startWordHunt(raw []byte, env Env) (State, []Effect, error) {
	cfg, err := decode[huntConfig](raw)
	if err != nil {
		return State{}, nil, err
	}
	if err := cfg.validate(); err != nil {
		return State{}, nil, err
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = defaultMinWordLen
	}
	if cfg.MinLength < 2 || cfg.MinLength > 8 {
		return State{}, nil, apperr.Invalid("minLength must be between 2 and 8")
	}
	tiles := []rune(textnorm.Letters(cfg.Letters))
	if cfg.Letters != "" && (len(tiles) < cfg.MinLength || len(tiles) > maxTileCount) {
		return State{}, nil, apperr.Invalid("letters must hold %d-%d tiles", cfg.MinLength, maxTileCount)
	}
	if len(tiles) == 0 {
		tiles = randomTiles(env, defaultTileCount)
	}
	extra := make(map[string]bool, len(cfg.ExtraWords))
	for _, w := range cfg.ExtraWords {
		if w = textnorm.Letters(w); w != "" {
			extra[w] = true
		}
	}
	st := &huntState{
		Tiles:     tiles,
		MinLen:    cfg.MinLength,
		Extra:     extra,
		AcceptAny: cfg.AcceptAny,
		Finders:   map[string][]string{},
		Found:     map[string][]string{},
		ByLength:  map[int]int{},
		OpenedAt:  env.Now,
		Timer:     cfg.timer(env.Settings.WordHuntTimer),
	}
	return State{Game: GameWordHunt, Phase: PhaseHunting, Payload: st}, []Effect{
		schedule(TimerRound, st.Timer),
		emit(protocol.GameRoundStarted, map[string]any{
			"letters":    string(tiles),
			"minLength":  st.MinLen,
			"deadlineMs": env.Now.Add(st.Timer).UnixMilli(),
		}),
	}, nil
}

// randomTiles deals n tiles with roughly one vowel in three.
func randomTiles(env Env, n int) []rune {
	r := env.rng()
	tiles := make([]rune, n)
	for i := range tiles {
		if i%3 == 0 {
			tiles[i] = rune(tileVowels[r.IntN(len(tileVowels))])
		} else {
			tiles[i] = rune(tileConsonants[r.IntN(len(tileConsonants))])
		}
	}
	r.Shuffle(n, func(i, j int) { tiles[i], tiles[j] = tiles[j], tiles[i] })
	return tiles
}

// spellable reports whether word uses each tile at most once.
func (st *huntState) spellable(word string) bool {
	avail := make(map[rune]int, len(st.Tiles))
	for _, t := range st.Tiles {
		avail[t]++
	}
	for _, r := range word {
		if avail[r] == 0 {
			return false
		}
		avail[r]--
	}
	return true
}

func huntPlayer(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*huntState)
	if a.Name != "submit" {
		return s, nil, unknownAction(s, a.Name)
	}
	if err := expectPhase(s, PhaseHunting); err != nil {
		return s, nil, err
	}
	if err := requireActive(env, a.PlayerID); err != nil {
		return s, nil, err
	}
	d, err := decode[wordData](a.Data)
	if err != nil {
		return s, nil, err
	}
	word := textnorm.Letters(d.Word)
	n := utf8.RuneCountInString(word)
	switch {
	case n < st.MinLen:
		return s, nil, apperr.Invalid("words need at least %d letters", st.MinLen)
	case !st.spellable(word):
		return s, nil, apperr.Invalid("%q cannot be spelled from the tiles", word)
	case !st.AcceptAny && !inDictionary(word, st.Extra):
		return s, nil, apperr.Invalid("%q is not in the dictionary", word)
	case slices.Contains(st.Found[a.PlayerID], word):
		return s, nil, apperr.Invalid("you already found %q", word)
	case len(st.Found[a.PlayerID]) >= maxFoundPerPlayer:
		return s, nil, apperr.Invalid("word limit reached")
	}

	st.Found[a.PlayerID] = append(st.Found[a.PlayerID], word)
	first := len(st.Finders[word]) == 0
	st.Finders[word] = append(st.Finders[word], a.PlayerID)

	pts := 0
	var effects []Effect
	if first {
		pts = wordPoints(n)
		st.ByLength[n]++
		effects = append(effects, award(a.PlayerID, pts), count(a.PlayerID, "words", 1))
	}
	effects = append(effects,
		emitTo(a.PlayerID, protocol.GameWordFound, map[string]any{"word": word, "points": pts, "first": first}),
		emit(protocol.GameWordCounts, map[string]any{
			"playerId":       a.PlayerID,
			"length":         n,
			"countsByLength": maps.Clone(st.ByLength),
		}),
	)
	return s, effects, nil
}

func huntHost(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*huntState)
	if a.Name != "end" {
		return s, nil, unknownAction(s, a.Name)
	}
	if err := expectPhase(s, PhaseHunting); err != nil {
		return s, nil, err
	}
	s, effects := st.reveal(s, "host")
	return s, effects, nil
}

func huntTick(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*huntState)
	if a.Name != TimerRound {
		return s, nil, apperr.Phase("nothing to update")
	}
	if err := expectPhase(s, PhaseHunting); err != nil {
		return s, nil, err
	}
	s, effects := st.reveal(s, "timeout")
	return s, effects, nil
}

func (st *huntState) reveal(s State, reason string) (State, []Effect) {
	words := slices.Sorted(maps.Keys(st.Finders))
	slices.SortStableFunc(words, func(a, b string) int {
		return utf8.RuneCountInString(b) - utf8.RuneCountInString(a)
	})
	found := make([]map[string]any, len(words))
	for i, w := range words {
		found[i] = map[string]any{"word": w, "finderIds": slices.Clone(st.Finders[w])}
	}
	return finishGame(s, []Effect{emit(protocol.GameReveal, map[string]any{
		"reason":         reason,
		"letters":        string(st.Tiles),
		"words":          found,
		"countsByLength": maps.Clone(st.ByLength),
	})})
}
