// Package ui models flow output independently of the transport: prompts,
// keyboard layouts, callback alerts, and side notices to other chats. Flow
// packages build these; the telegram glue renders them. Keeping the flows off
// tele.Context is what makes the state machines testable.
package ui

// Button is one inline keyboard button. Action maps to a callback unique,
// Data to its payload.
type Button struct {
	Label  string
	Action string
	Data   string
}

// Prompt is a message with an optional inline keyboard.
type Prompt struct {
	Text    string
	Buttons [][]Button
}

// Notice is a message addressed to a specific chat (group announce, payee DM).
// Delivery is best-effort; a failed notice never fails the flow.
type Notice struct {
	ChatID int64
	Text   string
}

// Outcome is everything a flow step wants the transport to do.
type Outcome struct {
	// Prompt is a new message to the triggering chat.
	Prompt *Prompt
	// Edit re-renders the triggering message in place (toggle keyboards).
	Edit *Prompt
	// Alert is callback-answer text; ShowAlert raises it as a modal.
	Alert     string
	ShowAlert bool
	// Notices go to other chats after the prompt.
	Notices []Notice
	// Done marks a terminal step: the session is gone.
	Done bool
}

// Text builds a plain prompt outcome.
func Text(text string) *Outcome {
	return &Outcome{Prompt: &Prompt{Text: text}}
}

// Row is a convenience constructor for a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}
