package events

import "time"

const (
	SubjectConversationCreated = "climate.conversation.created"
	SubjectConversationDeleted = "climate.conversation.deleted"
	SubjectMessageRecorded     = "climate.message.recorded"
	SubjectExportGenerated     = "climate.export.generated"
	SubjectServiceStarted      = "climate.service.started"
)

// ConversationCreated is emitted when a conversation row is inserted, either
// explicitly or by the first question of a new chat.
type ConversationCreated struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Title          string `json:"title"`
	Timestamp      string `json:"timestamp"`
}

type ConversationDeleted struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Timestamp      string `json:"timestamp"`
}

// MessageRecorded carries sizes only; question and answer text stay in the store.
type MessageRecorded struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	UserID         string `json:"user_id"`
	QuestionChars  int    `json:"question_chars"`
	AnswerChars    int    `json:"answer_chars"`
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
}

type ExportGenerated struct {
	UserID     string `json:"user_id"`
	Format     string `json:"format"`
	Filename   string `json:"filename"`
	TableCount int    `json:"table_count"`
	Bytes      int64  `json:"bytes"`
	Timestamp  string `json:"timestamp"`
}

// ServiceStarted announces a new front-end instance.
type ServiceStarted struct {
	Port      int    `json:"port"`
	Backend   string `json:"backend"`
	Timestamp string `json:"timestamp"`
}

// Timestamp formats t the way every payload carries it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
