package roomhandler

type RoomSummary struct {
	ID       string `json:"id"       example:"r1"`
	Members  int    `json:"members"  example:"2"`
	Language string `json:"language" example:"javascript"`
} // @name RoomSummary

type RoomDetail struct {
	ID       string   `json:"id"       example:"r1"`
	Users    []string `json:"users"`
	Language string   `json:"language" example:"python"`
	Code     string   `json:"code"`
} // @name RoomDetail

type RunBody struct {
	Code     string `json:"code"     binding:"required"`
	Language string `json:"language" binding:"required,oneof=javascript python java cpp" example:"python"`
	Version  string `json:"version"  example:"*"`
} // @name RunRequest

type RunResponse struct {
	Output string `json:"output"`
} // @name RunResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse
