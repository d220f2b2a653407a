package chathandler

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type HistoryQuery struct {
	Limit int `form:"limit,default=50" binding:"gte=1,lte=50"`
} // @name HistoryQuery

type MembersResponse struct {
	RoomID  string `json:"roomId"  example:"p1"`
	Members int    `json:"members" example:"3"`
} // @name MembersResponse
