package engine

import (
	"sort"
	"time"
)

type Family string

const (
	FamilyBuzzerRace   Family = "buzzer-race"
	FamilySimultaneous Family = "simultaneous"
	FamilySharedCanvas Family = "shared-artifact"
	FamilyFreeForAll   Family = "free-for-all"
	FamilyRanked       Family = "ranked"
)

const (
	GameImageGuess   GameID = "image-guess"
	GameWhatsMissing GameID = "whats-missing"
	GameEmojiRiddle  GameID = "emoji-riddle"
	GameQuiz         GameID = "quiz"
	GameYesNo        GameID = "yes-no"
	GameNumberTarget GameID = "number-target"
	GameEstimation   GameID = "estimation"
	GameWordChain    GameID = "word-chain"
	GameDrawGuess    GameID = "draw-guess"
	GameDoodleStory  GameID = "doodle-story"
	GameWordHunt     GameID = "word-hunt"
	GameTimelineSort GameID = "timeline-sort"
	GameSizeSort     GameID = "size-sort"
)

type Handler func(s State, a Action, env Env) (State, []Effect, error)

type Rules struct {
	Family Family
	Start  func(config []byte, env Env) (State, []Effect, error)
	Host   Handler
	Player Handler
	Tick   Handler
}

var registry = map[GameID]Rules{}

func register(id GameID, r Rules) {
	registry[id] = r
}

// Known reports whether id names a playable game.
func Known(id GameID) bool {
	_, ok := registry[id]
	return ok
}

// Games lists every registered game id, sorted.
func Games() []GameID {
	out := make([]GameID, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Settings are the server-wide timing defaults. A game's config may
// override its own timer with timerSeconds.
type Settings struct {
	AnswerTimeout  time.Duration
	BuzzCooldown   time.Duration
	QuizTimer      time.Duration
	SortTimer      time.Duration
	WordHuntTimer  time.Duration
	DrawTimer      time.Duration
	RelayTurnTimer time.Duration
	StoryTurnTimer time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		AnswerTimeout:  10 * time.Second,
		BuzzCooldown:   3 * time.Second,
		QuizTimer:      20 * time.Second,
		SortTimer:      60 * time.Second,
		WordHuntTimer:  80 * time.Second,
		DrawTimer:      75 * time.Second,
		RelayTurnTimer: 15 * time.Second,
		StoryTurnTimer: 60 * time.Second,
	}
}
