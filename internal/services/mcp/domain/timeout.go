package domain

import "time"

// chatCallTimeout caps one tool call, including a first replay of the chat.
const chatCallTimeout = 15 * time.Second
