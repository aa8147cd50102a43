package models

// MessageSource identifies who wrote a message.
type MessageSource string

const (
	SourceStudent MessageSource = "STUDENT"
	SourceAI      MessageSource = "AI"
	SourceSystem  MessageSource = "SYSTEM"
)

// MessageReference is a course document cited by an assistant answer.
type MessageReference struct {
	DocumentName    string `json:"documentName"`
	SourceURL       string `json:"sourceUrl"`
	DocumentContent string `json:"documentContent"`
}

// ConversationMessage is one message of a conversation. Content is Markdown.
type ConversationMessage struct {
	MessageID  string             `json:"message_id"`
	Content    string             `json:"content"`
	Source     MessageSource      `json:"msg_source"`
	CourseID   string             `json:"course_id"`
	Timestamp  string             `json:"msg_timestamp"`
	References []MessageReference `json:"references,omitempty"`
	StudentID  string             `json:"student_id,omitempty"`
}

// Conversation is a conversation and its messages.
type Conversation struct {
	ConversationID string                `json:"conversation_id"`
	Messages       []ConversationMessage `json:"messages"`
}

// ConversationSession summarizes a past conversation.
type ConversationSession struct {
	ConversationID       string `json:"conversation_id"`
	LastMessageTimestamp string `json:"last_message_timestamp"`
	Summary              string `json:"summary"`
}

// SendMessageRequest is the body of a student message.
type SendMessageRequest struct {
	Course         string `json:"course"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Language       string `json:"language,omitempty"`
}
