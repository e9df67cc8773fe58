package domain

import "time"

// Button identifies a physical key on the terminal.
type Button string

const (
	Btn1    Button = "BTN_1"
	Btn2    Button = "BTN_2"
	Btn3    Button = "BTN_3"
	Btn4    Button = "BTN_4"
	Btn5    Button = "BTN_5"
	Btn6    Button = "BTN_6"
	Btn7    Button = "BTN_7"
	Btn8    Button = "BTN_8"
	Enter   Button = "ENTER"
	Esc     Button = "ESC"
	HLLeft  Button = "HL_LEFT"
	HLRight Button = "HL_RIGHT"
)

// NumberedButtons lists BTN_1..BTN_8 in order.
var NumberedButtons = []Button{Btn1, Btn2, Btn3, Btn4, Btn5, Btn6, Btn7, Btn8}

// Known reports whether b is a button this service understands.
func (b Button) Known() bool {
	switch b {
	case Btn1, Btn2, Btn3, Btn4, Btn5, Btn6, Btn7, Btn8, Enter, Esc, HLLeft, HLRight:
		return true
	}
	return false
}

// Index returns the 1-based number of a BTN_n button, or 0 for other buttons.
func (b Button) Index() int {
	for i, nb := range NumberedButtons {
		if b == nb {
			return i + 1
		}
	}
	return 0
}

// Screen identifies a logical screen on the device.
type Screen string

const (
	ScreenSetup    Screen = "setup"
	ScreenNewMatch Screen = "new_match"
	ScreenPlay     Screen = "play"
)

// Color is a side choice. Random is only valid as a new-match preference.
type Color string

const (
	White  Color = "white"
	Black  Color = "black"
	Random Color = "random"
)

// GameStatus mirrors the remote service's game lifecycle states.
type GameStatus string

const (
	StatusCreated   GameStatus = "created"
	StatusStarted   GameStatus = "started"
	StatusAborted   GameStatus = "aborted"
	StatusMate      GameStatus = "mate"
	StatusResign    GameStatus = "resign"
	StatusStalemate GameStatus = "stalemate"
	StatusTimeout   GameStatus = "timeout"
	StatusDraw      GameStatus = "draw"
	StatusOutOfTime GameStatus = "outoftime"
	StatusUnknown   GameStatus = "unknownFinish"
)

// Terminal reports whether the status ends the game.
func (s GameStatus) Terminal() bool {
	switch s {
	case StatusCreated, StatusStarted:
		return false
	}
	return true
}

// DrawOffer tracks an open draw offer on a game.
type DrawOffer string

const (
	DrawOfferNone     DrawOffer = ""
	DrawOfferSelf     DrawOffer = "self"
	DrawOfferOpponent DrawOffer = "opponent"
)

// Account is a remote-service identity configured for a device.
type Account struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	TokenRef  string    `json:"token_ref"`
	Enabled   bool      `json:"enabled"`
	Default   bool      `json:"default"`
	CreatedAt time.Time `json:"created_at"`
}

// Adversary is a known opponent selectable on the new-match screen.
type Adversary struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	Username     string `json:"username"`
	FriendlyName string `json:"friendly_name,omitempty"`
}

// Label returns the display name for the adversary.
func (a Adversary) Label() string {
	if a.FriendlyName != "" {
		return a.FriendlyName
	}
	return a.Username
}

// GameEventKind classifies inbound game notifications.
type GameEventKind string

const (
	EventOpponentMove GameEventKind = "opponent_move"
	EventDrawOffered  GameEventKind = "draw_offered"
	EventGameEnded    GameEventKind = "game_ended"
	EventGameState    GameEventKind = "game_state"
)

// GameEvent is one inbound notification from the remote service.
// Seq is the ply count after the event's move has been applied; it is the
// dedup key for opponent_move events.
type GameEvent struct {
	GameID  string        `json:"game_id"`
	Kind    GameEventKind `json:"kind"`
	MoveUCI string        `json:"move_uci,omitempty"`
	Moves   string        `json:"moves,omitempty"`
	Seq     int           `json:"seq,omitempty"`
	Status  GameStatus    `json:"status,omitempty"`
	Winner  Color         `json:"winner,omitempty"`
}
