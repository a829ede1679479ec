package constant

const (
	StreamEventUpdate  = "data:update"
	StreamEventTurbo   = "data:turbo"
	StreamEventRemoved = "data:removed"
	StreamEventError   = "error"
	StreamEventAck     = "subscribed"

	StreamActionSubscribe   = "subscribe"
	StreamActionUnsubscribe = "unsubscribe"

	StreamModeAll      = "all"
	StreamModeCategory = "category"
	StreamModeSymbols  = "symbols"
)
