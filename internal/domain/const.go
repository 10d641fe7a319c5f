package domain

const (
	RequesterIDCtxKey = "cv-requesterId"
)

const (
	RequesterIDHeader = "cv-requester-id"
)
