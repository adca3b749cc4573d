// Package duel is the two-player score race played on one kiosk.
//
// A Game is not safe for concurrent use; the owner serializes access.
package duel

import (
	"time"
)

const DefaultThreshold = 8

type Status string

const (
	StatusLoading  Status = "loading"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
	StatusAborted  Status = "aborted"
)

// Side picks one of the two players.
type Side int

const (
	Player1 Side = 1
	Player2 Side = 2
)

type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	ScanID   int64  `json:"scanId,omitempty"`
}

// State is a point-in-time copy of a Game.
type State struct {
	Player1   Player     `json:"player1"`
	Player2   Player     `json:"player2"`
	Score1    int        `json:"score1"`
	Score2    int        `json:"score2"`
	Threshold int        `json:"threshold"`
	Elapsed   int        `json:"elapsedSeconds"`
	Status    Status     `json:"status"`
	Winner    *Player    `json:"winner,omitempty"`
	Demo      bool       `json:"demo"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

type Game struct {
	p1, p2    Player
	score1    int
	score2    int
	threshold int
	elapsed   int
	status    Status
	winner    *Side
	demo      bool
	startedAt time.Time
	endedAt   time.Time
}

// New returns a game in Loading. A threshold <= 0 means DefaultThreshold.
func New(p1, p2 Player, threshold int, demo bool) *Game {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Game{p1: p1, p2: p2, threshold: threshold, status: StatusLoading, demo: demo}
}

func (g *Game) Status() Status { return g.status }

func (g *Game) Demo() bool { return g.demo }

// Done reports whether the game reached a terminal status.
func (g *Game) Done() bool {
	return g.status == StatusFinished || g.status == StatusAborted
}

// Start moves Loading to Playing. It reports whether the transition happened.
func (g *Game) Start(now time.Time) bool {
	if g.status != StatusLoading {
		return false
	}
	g.status = StatusPlaying
	g.startedAt = now
	return true
}

// Tick advances the elapsed counter by one second while Playing.
func (g *Game) Tick() bool {
	if g.status != StatusPlaying {
		return false
	}
	g.elapsed++
	return true
}

// Adjust adds delta to one side's score, clamped at zero. After an increase
// the threshold is evaluated for player 1 first, then player 2. It reports
// whether the game state changed and, if so, whether it just finished.
func (g *Game) Adjust(side Side, delta int, now time.Time) (changed, finished bool) {
	if g.status != StatusPlaying || delta == 0 {
		return false, false
	}

	score := &g.score1
	if side == Player2 {
		score = &g.score2
	} else if side != Player1 {
		return false, false
	}

	next := *score + delta
	if next < 0 {
		next = 0
	}
	if next == *score {
		return false, false
	}
	*score = next

	if delta < 0 {
		return true, false
	}
	return true, g.checkThreshold(now)
}

func (g *Game) checkThreshold(now time.Time) bool {
	var w Side
	switch {
	case g.score1 >= g.threshold:
		w = Player1
	case g.score2 >= g.threshold:
		w = Player2
	default:
		return false
	}
	g.winner = &w
	g.status = StatusFinished
	g.endedAt = now
	return true
}

// Abort ends a Loading or Playing game without a winner.
func (g *Game) Abort(now time.Time) bool {
	if g.Done() {
		return false
	}
	g.status = StatusAborted
	g.endedAt = now
	return true
}

func (g *Game) Snapshot() State {
	s := State{
		Player1:   g.p1,
		Player2:   g.p2,
		Score1:    g.score1,
		Score2:    g.score2,
		Threshold: g.threshold,
		Elapsed:   g.elapsed,
		Status:    g.status,
		Demo:      g.demo,
	}
	if g.winner != nil {
		p := g.p1
		if *g.winner == Player2 {
			p = g.p2
		}
		s.Winner = &p
	}
	if !g.startedAt.IsZero() {
		t := g.startedAt
		s.StartedAt = &t
	}
	if !g.endedAt.IsZero() {
		t := g.endedAt
		s.EndedAt = &t
	}
	return s
}
