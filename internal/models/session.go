package models

import "time"

// State names the top-level position in the conversation.
type State string

const (
	StateIdle              State = "IDLE"
	StateAdminMenu         State = "ADMIN_MENU"
	StateSelectingLetter   State = "SELECTING_LETTER"
	StateSelectingPerson   State = "SELECTING_PERSON"
	StateViewingCard       State = "VIEWING_CARD"
	StateBuilderMode       State = "BUILDER_MODE"
	StateAskingAssistant   State = "ASKING_ASSISTANT"
	StateOtherMenu         State = "OTHER_MENU"
	StateSelectingMonth    State = "SELECTING_MONTH"
	StateSelectingHomeroom State = "SELECTING_HOMEROOM_GROUP"
)

// Mode distinguishes how a card was opened.
type Mode string

const (
	ModeViewOnly Mode = "VIEW_ONLY"
	ModeEdit     Mode = "EDIT"
	ModeCreate   Mode = "CREATE"
)

// Step is the sub-state within builder mode and admin text prompts.
type Step string

const (
	StepMenu                    Step = "MENU"
	StepWaitingValue            Step = "WAITING_VALUE"
	StepWaitingNewCategory      Step = "WAITING_NEW_CATEGORY"
	StepWaitingHomeroomPick     Step = "WAITING_HOMEROOM_SELECTION"
	StepWaitingStatusPick       Step = "WAITING_STATUS_SELECTION"
	StepWaitingQuestion         Step = "WAITING_QUESTION"
	StepWaitingUserIDForAdd     Step = "WAITING_USER_ID_FOR_ADD"
	StepWaitingUserIDForRemove  Step = "WAITING_USER_ID_FOR_REMOVE"
)

// PersonRef is one entry of a letter listing, pinned to the sheet row the
// label was built from.
type PersonRef struct {
	RowNumber int    `json:"row_number"`
	Label     string `json:"label"`
}

// Session is the per-chat conversation state. It is a plain value so both
// the memory and redis stores can copy and serialize it.
type Session struct {
	UserID int64 `json:"user_id"`

	State State `json:"state"`
	Mode  Mode  `json:"mode,omitempty"`
	Step  Step  `json:"step,omitempty"`

	LastLetter string      `json:"last_letter,omitempty"`
	People     []PersonRef `json:"people,omitempty"`
	ViewingRow int         `json:"viewing_row,omitempty"`
	EditingRow int         `json:"editing_row,omitempty"`

	Draft        map[string]string `json:"draft,omitempty"`
	CurrentField string            `json:"current_field,omitempty"`

	HomeroomGroups []string `json:"homeroom_groups,omitempty"`

	LastAccess time.Time `json:"last_access"`
}

// NewSession returns a fresh idle session for the user.
func NewSession(userID int64) *Session {
	return &Session{
		UserID:     userID,
		State:      StateIdle,
		LastAccess: time.Now(),
	}
}

// Reset drops all conversation progress but keeps the identity.
func (s *Session) Reset() {
	userID := s.UserID
	*s = Session{UserID: userID, State: StateIdle, LastAccess: time.Now()}
}

// Touch refreshes the inactivity lease.
func (s *Session) Touch() {
	s.LastAccess = time.Now()
}

// Expired reports whether the session is past its inactivity timeout.
func (s *Session) Expired(timeout time.Duration, now time.Time) bool {
	if timeout <= 0 {
		return false
	}
	return now.Sub(s.LastAccess) > timeout
}
