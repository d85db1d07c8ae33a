package engine

import (
	"math"
	"time"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/textnorm"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

// Simultaneous submit: every active player answers on their own device
// within the round timer. The round is revealed by whichever comes first:
// the last answer, the host, or the timer. Reveal only runs from the
// question phase, so the losers of that race are rejected harmlessly.
const (
	PhaseQuestion Phase = "question"
	PhaseRevealed Phase = "revealed"
)

const defaultSimPoints = 100

type simQuestion struct {
	Prompt string `json:"prompt"`
	Media  string `json:"media,omitempty"`

	// quiz
	Choices []string `json:"choices,omitempty"`
	Correct int      `json:"correct"`

	// yes-no
	Truth bool `json:"truth,omitempty"`

	// number-target
	Numbers []int `json:"numbers,omitempty"`
	Target  int   `json:"target,omitempty"`

	// estimation
	Value float64 `json:"value,omitempty"`
	Unit  string  `json:"unit,omitempty"`
}

func (q simQuestion) clone() simQuestion {
	q.Choices = append([]string(nil), q.Choices...)
	q.Numbers = append([]int(nil), q.Numbers...)
	return q
}

type simAnswer struct {
	Choice    int     `json:"choice,omitempty"`
	Yes       bool    `json:"yes,omitempty"`
	Number    float64 `json:"number,omitempty"`
	Display   string  `json:"display"`
	ElapsedMs int64   `json:"elapsedMs"`
}

type simResult struct {
	PlayerID   string `json:"playerId"`
	Answer     string `json:"answer,omitempty"`
	Correct    bool   `json:"correct"`
	Points     int    `json:"points"`
	Eliminated bool   `json:"eliminated,omitempty"`
}

type simConfig struct {
	baseConfig
	Questions []simQuestion `json:"questions"`
	Points    int           `json:"points"`
}

// simRules is what differs between the games of this family.
type simRules struct {
	timer    func(Settings) time.Duration
	check    func(i int, q *simQuestion, env Env) error
	parse    func(q simQuestion, data []byte) (simAnswer, error)
	score    func(st *simState, q simQuestion, env Env) ([]simResult, string)
	redacted func(q simQuestion) simQuestion
}

var simGames = map[GameID]simRules{
	GameQuiz: {
		timer:    func(s Settings) time.Duration { return s.QuizTimer },
		check:    checkQuiz,
		parse:    parseChoice,
		score:    scoreQuiz,
		redacted: func(q simQuestion) simQuestion { q.Correct = -1; return q },
	},
	GameYesNo: {
		timer:    func(s Settings) time.Duration { return s.QuizTimer },
		check:    func(i int, q *simQuestion, _ Env) error { return requirePrompt(i, *q) },
		parse:    parseYesNo,
		score:    scoreYesNo,
		redacted: func(q simQuestion) simQuestion { q.Truth = false; return q },
	},
	GameNumberTarget: {
		timer:    func(s Settings) time.Duration { return s.QuizTimer * 3 },
		check:    checkNumberTarget,
		parse:    parseExpression,
		score:    scoreNumberTarget,
		redacted: func(q simQuestion) simQuestion { return q },
	},
	GameEstimation: {
		timer:    func(s Settings) time.Duration { return s.QuizTimer },
		check:    func(i int, q *simQuestion, _ Env) error { return requirePrompt(i, *q) },
		parse:    parseNumber,
		score:    scoreEstimation,
		redacted: func(q simQuestion) simQuestion { q.Value = 0; return q },
	},
}

func init() {
	for id := range simGames {
		register(id, Rules{
			Family: FamilySimultaneous,
			Start:  startSimultaneous(id),
			Host:   simHost,
			Player: simPlayer,
			Tick:   simTick,
		})
	}
}

type simState struct {
	Game      GameID
	Questions []simQuestion
	Answers   map[string]simAnswer
	Order     []string
	OpenedAt  time.Time
	Timer     time.Duration
	Points    int
	Results   []simResult
	Solution  string
}

func (st *simState) Clone() Payload {
	c := *st
	c.Questions = make([]simQuestion, len(st.Questions))
	for i, q := range st.Questions {
		c.Questions[i] = q.clone()
	}
	c.Answers = make(map[string]simAnswer, len(st.Answers))
	for k, v := range st.Answers {
		c.Answers[k] = v
	}
	c.Order = append([]string(nil), st.Order...)
	c.Results = append([]simResult(nil), st.Results...)
	return &c
}

type simView struct {
	Question   simQuestion          `json:"question"`
	Rounds     int                  `json:"rounds"`
	DeadlineMs int64                `json:"deadlineMs"`
	Answered   []string             `json:"answeredIds"`
	MyAnswer   *simAnswer           `json:"myAnswer,omitempty"`
	Answers    map[string]simAnswer `json:"answers,omitempty"`
	Solution   string               `json:"solution,omitempty"`
	Results    []simResult          `json:"results,omitempty"`
}

func (st *simState) View(phase Phase, round int, v Viewer) any {
	q := st.Questions[round].clone()
	revealed := phase != PhaseQuestion
	if !revealed && !v.Host {
		q = simGames[st.Game].redacted(q)
	}
	view := simView{
		Question:   q,
		Rounds:     len(st.Questions),
		DeadlineMs: st.OpenedAt.Add(st.Timer).UnixMilli(),
		Answered:   append([]string{}, st.Order...),
	}
	if a, ok := st.Answers[v.PlayerID]; ok {
		view.MyAnswer = &a
	}
	if v.Host || revealed {
		view.Answers = make(map[string]simAnswer, len(st.Answers))
		for k, a := range st.Answers {
			view.Answers[k] = a
		}
	}
	if revealed {
		view.Solution = st.Solution
		view.Results = append([]simResult{}, st.Results...)
	}
	return view
}

func startSimultaneous(id GameID) func([]byte, Env) (State, []Effect, error) {
	return func(raw []byte, env Env) (State, []Effect, error) {
		rules := simGames[id]
		cfg, err := decode[simConfig](raw)
		if err != nil {
			return State{}, nil, err
		}
		if err := cfg.validate(); err != nil {
			return State{}, nil, err
		}
		if len(cfg.Questions) == 0 {
			return State{}, nil, apperr.Invalid("at least one question is required")
		}
		for i := range cfg.Questions {
			if err := rules.check(i, &cfg.Questions[i], env); err != nil {
				return State{}, nil, err
			}
		}
		if cfg.Points <= 0 {
			cfg.Points = defaultSimPoints
		}
		st := &simState{
			Game:      id,
			Questions: cfg.Questions,
			Answers:   map[string]simAnswer{},
			Timer:     cfg.timer(rules.timer(env.Settings)),
			Points:    cfg.Points,
		}
		s := State{Game: id, Phase: PhaseQuestion, Payload: st}
		return s, st.open(s, env), nil
	}
}

func (st *simState) open(s State, env Env) []Effect {
	st.OpenedAt = env.Now
	return []Effect{
		schedule(TimerRound, st.Timer),
		emit(protocol.GameRoundStarted, map[string]any{
			"roundIndex": s.Round,
			"rounds":     len(st.Questions),
			"deadlineMs": env.Now.Add(st.Timer).UnixMilli(),
		}),
	}
}

func simHost(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*simState)
	switch a.Name {
	case "reveal":
		if err := expectPhase(s, PhaseQuestion); err != nil {
			return s, nil, err
		}
		s, effects := st.reveal(s, env)
		return s, effects, nil

	case "next":
		if err := expectPhase(s, PhaseRevealed); err != nil {
			return s, nil, err
		}
		lastStanding := st.Game == GameYesNo && len(env.Active()) <= 1
		if lastStanding || s.Round+1 >= len(st.Questions) {
			s, effects := finishGame(s, nil)
			return s, effects, nil
		}
		s.Round++
		s.Phase = PhaseQuestion
		clear(st.Answers)
		st.Order, st.Results, st.Solution = nil, nil, ""
		return s, st.open(s, env), nil
	}
	return s, nil, unknownAction(s, a.Name)
}

func simPlayer(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*simState)
	if a.Name != "answer" {
		return s, nil, unknownAction(s, a.Name)
	}
	if err := expectPhase(s, PhaseQuestion); err != nil {
		return s, nil, err
	}
	if err := requireActive(env, a.PlayerID); err != nil {
		return s, nil, err
	}
	if _, done := st.Answers[a.PlayerID]; done {
		return s, nil, apperr.Invalid("already answered")
	}
	ans, err := simGames[st.Game].parse(st.Questions[s.Round], a.Data)
	if err != nil {
		return s, nil, err
	}
	ans.ElapsedMs = env.Now.Sub(st.OpenedAt).Milliseconds()
	st.Answers[a.PlayerID] = ans
	st.Order = append(st.Order, a.PlayerID)

	effects := []Effect{
		reply(map[string]any{"accepted": true}),
		emit(protocol.GameAnswerReceived, map[string]any{
			"playerId": a.PlayerID,
			"answered": len(st.Order),
			"total":    len(env.Active()),
		}),
	}
	if st.allAnswered(env) {
		var more []Effect
		s, more = st.reveal(s, env)
		effects = append(effects, more...)
	}
	return s, effects, nil
}

func simTick(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*simState)
	switch a.Name {
	case TimerRound:
		if err := expectPhase(s, PhaseQuestion); err != nil {
			return s, nil, err
		}
		s, effects := st.reveal(s, env)
		return s, effects, nil
	case TimerRoster:
		if s.Phase != PhaseQuestion || !st.allAnswered(env) {
			return s, nil, apperr.Phase("nothing to update")
		}
		s, effects := st.reveal(s, env)
		return s, effects, nil
	}
	return s, nil, unknownAction(s, a.Name)
}

func (st *simState) allAnswered(env Env) bool {
	active := env.Active()
	if len(active) == 0 {
		return false
	}
	for _, p := range active {
		if _, ok := st.Answers[p.ID]; !ok {
			return false
		}
	}
	return true
}

func (st *simState) reveal(s State, env Env) (State, []Effect) {
	q := st.Questions[s.Round]
	results, solution := simGames[st.Game].score(st, q, env)
	st.Results = results
	st.Solution = solution
	s.Phase = PhaseRevealed

	effects := []Effect{cancel(TimerRound)}
	for _, r := range results {
		if r.Points != 0 {
			effects = append(effects, award(r.PlayerID, r.Points))
		}
		if r.Correct {
			effects = append(effects, count(r.PlayerID, "correct", 1))
		}
		if r.Eliminated {
			effects = append(effects, eliminate(r.PlayerID))
		}
	}
	return s, append(effects, emit(protocol.GameReveal, map[string]any{
		"roundIndex": s.Round,
		"solution":   solution,
		"results":    results,
	}))
}

// --- per-game rules ---

func requirePrompt(i int, q simQuestion) error {
	if q.Prompt == "" && q.Media == "" {
		return apperr.Invalid("question %d needs a prompt or media", i)
	}
	return nil
}

func checkQuiz(i int, q *simQuestion, _ Env) error {
	if err := requirePrompt(i, *q); err != nil {
		return err
	}
	if len(q.Choices) < 2 || len(q.Choices) > 6 {
		return apperr.Invalid("question %d needs 2-6 choices", i)
	}
	if q.Correct < 0 || q.Correct >= len(q.Choices) {
		return apperr.Invalid("question %d has no valid correct choice", i)
	}
	return nil
}

func checkNumberTarget(i int, q *simQuestion, env Env) error {
	if len(q.Numbers) == 0 {
		*q = generateNumberTarget(env)
		return nil
	}
	if len(q.Numbers) > 8 {
		return apperr.Invalid("question %d has more than 8 numbers", i)
	}
	for _, n := range q.Numbers {
		if n <= 0 || n > 1000 {
			return apperr.Invalid("question %d numbers must be 1-1000", i)
		}
	}
	if q.Target <= 0 {
		return apperr.Invalid("question %d needs a positive target", i)
	}
	return nil
}

// generateNumberTarget deals four small and two large numbers and a
// three-digit target.
func generateNumberTarget(env Env) simQuestion {
	r := env.rng()
	large := []int{25, 50, 75, 100}
	q := simQuestion{Prompt: "Reach the target"}
	for i := 0; i < 4; i++ {
		q.Numbers = append(q.Numbers, r.IntN(10)+1)
	}
	for _, j := range r.Perm(len(large))[:2] {
		q.Numbers = append(q.Numbers, large[j])
	}
	q.Target = 100 + r.IntN(900)
	return q
}

type choiceData struct {
	Choice *int `json:"choice"`
}

func parseChoice(q simQuestion, data []byte) (simAnswer, error) {
	d, err := decode[choiceData](data)
	if err != nil {
		return simAnswer{}, err
	}
	if d.Choice == nil || *d.Choice < 0 || *d.Choice >= len(q.Choices) {
		return simAnswer{}, apperr.Invalid("choice out of range")
	}
	return simAnswer{Choice: *d.Choice, Display: q.Choices[*d.Choice]}, nil
}

type yesNoData struct {
	Yes *bool `json:"yes"`
}

func parseYesNo(_ simQuestion, data []byte) (simAnswer, error) {
	d, err := decode[yesNoData](data)
	if err != nil {
		return simAnswer{}, err
	}
	if d.Yes == nil {
		return simAnswer{}, apperr.Invalid("yes is required")
	}
	display := "no"
	if *d.Yes {
		display = "yes"
	}
	return simAnswer{Yes: *d.Yes, Display: display}, nil
}

type exprData struct {
	Expression string `json:"expression"`
}

func parseExpression(q simQuestion, data []byte) (simAnswer, error) {
	d, err := decode[exprData](data)
	if err != nil {
		return simAnswer{}, err
	}
	expr := textnorm.Clean(d.Expression)
	v, err := evalTarget(expr, q.Numbers)
	if err != nil {
		return simAnswer{}, err
	}
	return simAnswer{Number: float64(v), Display: expr}, nil
}

type numberData struct {
	Number *float64 `json:"number"`
}

func parseNumber(_ simQuestion, data []byte) (simAnswer, error) {
	d, err := decode[numberData](data)
	if err != nil {
		return simAnswer{}, err
	}
	if d.Number == nil || math.IsNaN(*d.Number) || math.IsInf(*d.Number, 0) {
		return simAnswer{}, apperr.Invalid("number is required")
	}
	return simAnswer{Number: *d.Number, Display: formatNumber(*d.Number)}, nil
}

// scoreQuiz gives full points for a correct choice plus up to half again
// for answering early.
func scoreQuiz(st *simState, q simQuestion, _ Env) ([]simResult, string) {
	out := make([]simResult, 0, len(st.Order))
	for _, id := range st.Order {
		a := st.Answers[id]
		r := simResult{PlayerID: id, Answer: a.Display}
		if a.Choice == q.Correct {
			r.Correct = true
			r.Points = st.Points + speedBonus(st.Points/2, a.ElapsedMs, st.Timer)
		}
		out = append(out, r)
	}
	return out, q.Choices[q.Correct]
}

func speedBonus(max int, elapsedMs int64, window time.Duration) int {
	total := window.Milliseconds()
	if total <= 0 || elapsedMs >= total {
		return 0
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	return int(int64(max) * (total - elapsedMs) / total)
}

// scoreYesNo eliminates every active player who answered wrong or not at
// all, unless that would eliminate everyone still standing.
func scoreYesNo(st *simState, q simQuestion, env Env) ([]simResult, string) {
	solution := "no"
	if q.Truth {
		solution = "yes"
	}
	active := env.Active()
	anyCorrect := false
	for _, p := range active {
		if a, ok := st.Answers[p.ID]; ok && a.Yes == q.Truth {
			anyCorrect = true
			break
		}
	}
	out := make([]simResult, 0, len(active))
	for _, p := range active {
		a, answered := st.Answers[p.ID]
		r := simResult{PlayerID: p.ID, Answer: a.Display}
		if answered && a.Yes == q.Truth {
			r.Correct = true
			r.Points = st.Points
		} else if anyCorrect {
			r.Eliminated = true
		}
		out = append(out, r)
	}
	return out, solution
}

func scoreNumberTarget(st *simState, q simQuestion, _ Env) ([]simResult, string) {
	out := make([]simResult, 0, len(st.Order))
	for _, id := range st.Order {
		a := st.Answers[id]
		diff := int(math.Abs(a.Number - float64(q.Target)))
		r := simResult{PlayerID: id, Answer: a.Display + " = " + formatNumber(a.Number)}
		switch {
		case diff == 0:
			r.Correct = true
			r.Points = st.Points
		case diff <= 5:
			r.Points = st.Points / 2
		case diff <= 10:
			r.Points = st.Points / 5
		}
		out = append(out, r)
	}
	return out, formatNumber(float64(q.Target))
}

// scoreEstimation gives full points to the closest guess (ties share) and
// half to anyone else within ten percent.
func scoreEstimation(st *simState, q simQuestion, _ Env) ([]simResult, string) {
	best := math.Inf(1)
	for _, id := range st.Order {
		if d := math.Abs(st.Answers[id].Number - q.Value); d < best {
			best = d
		}
	}
	out := make([]simResult, 0, len(st.Order))
	for _, id := range st.Order {
		a := st.Answers[id]
		d := math.Abs(a.Number - q.Value)
		r := simResult{PlayerID: id, Answer: a.Display}
		switch {
		case d == best:
			r.Correct = true
			r.Points = st.Points
		case d <= math.Abs(q.Value)*0.1:
			r.Points = st.Points / 2
		}
		out = append(out, r)
	}
	solution := formatNumber(q.Value)
	if q.Unit != "" {
		solution += " " + q.Unit
	}
	return out, solution
}
