package models

// Inbound is a chat update reduced to what the dialogs need.
type Inbound struct {
	UpdateID  int
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	MessageID int
	Text      string
	Command   string
	Contact   *Contact
	Callback  *Callback
}

func (in *Inbound) IsCommand() bool {
	return in.Command != ""
}

type Contact struct {
	UserID      int64
	PhoneNumber string
	FirstName   string
	LastName    string
}

// Callback is an inline button press. MessageText is the plain text of the message carrying the button.
type Callback struct {
	ID          string
	Data        string
	MessageID   int
	MessageText string
}

// Inline button payloads sent with reviewer notifications.
const (
	CallbackApprove = "approve"
	CallbackReject  = "reject"
)

// Button is either a reply keyboard key or, when Data is set, an inline button.
type Button struct {
	Text           string
	Data           string
	RequestContact bool
}

// Reply is an outbound HTML message with an optional keyboard.
type Reply struct {
	Text           string
	Keyboard       [][]Button
	Inline         [][]Button
	RemoveKeyboard bool
}
