package redisstore

// Stream field constants (avoid typos/allocs)
const (
	fieldEventID   = "id"
	fieldEventType = "type"
	fieldEventTime = "time" // int64 ns
	fieldMessageID = "message_id"
	fieldPayload   = "payload" // JSON event
)

const (
	keyMessage      = "msg:"
	keyMessageIndex = "msgs" // sorted set of ids scored by creation time
	keyEvents       = "events"
	keyMessageEvent = "events:"
	keyListeners    = "listeners"
)
