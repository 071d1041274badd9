package notifier

import "context"

// Button 是一个内联键盘按钮。
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// Keyboard 按行组织按钮。
type Keyboard [][]Button

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, chatID, text string, kb Keyboard) error
}

// FallbackProvider is implemented by senders that can offer a second,
// lower-level delivery path for the same channel.
type FallbackProvider interface {
	Fallback() Sender
}

// Notifier 是业务组件依赖的最小通知接口。
type Notifier interface {
	Enqueue(text string, kb Keyboard) bool
}
