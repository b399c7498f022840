package domain

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)
