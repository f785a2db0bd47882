package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskChatNotify announces a chat message nobody in the console is viewing.
	TaskChatNotify = "chat:notify"
)

// ChatNotifyPayload describes a message received in an unwatched conversation.
type ChatNotifyPayload struct {
	CompanyID      string    `json:"company_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Title          string    `json:"title"`
	Sender         string    `json:"sender,omitempty"`
	Preview        string    `json:"preview"`
	UnreadCount    int       `json:"unread_count"`
	ReceivedAt     time.Time `json:"received_at"`
}

// NewChatNotifyTask constructs an Asynq task.
func NewChatNotifyTask(payload ChatNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskChatNotify, data), nil
}

func chatNotifyTaskID(payload ChatNotifyPayload) string {
	return TaskChatNotify + ":" + payload.CompanyID + ":" + payload.MessageID
}
