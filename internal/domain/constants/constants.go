package constants

const (
	Admin = "admin"
	User  = "user"
)

const UnknownUser = "UnknownUser"
