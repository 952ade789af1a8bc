package conversation

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation history fed to the generator.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User builds a user-authored message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant builds an assistant-authored message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
