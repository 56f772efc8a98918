package dto

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type EnqueueDatasetRequest struct {
	GUID  string `json:"guid" binding:"required"`
	Title string `json:"title" binding:"required"`
}

type ListTasksRequest struct {
	Limit int `form:"limit" binding:"gte=0,lte=500"`
}
