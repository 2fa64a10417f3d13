package store

var (
	Notification      = notification
	ParseNotification = parseNotification
)
