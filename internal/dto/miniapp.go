package dto

// PersonRequest carries card fields for create and update calls.
type PersonRequest struct {
	Fields map[string]string `json:"fields" binding:"required"`
}

// AskRequest is a query assistant question.
type AskRequest struct {
	Question string `json:"question" binding:"required,min=3,max=1000"`
}

// GrantAccessRequest adds an authorized user.
type GrantAccessRequest struct {
	ID       int64  `json:"id" binding:"required,gt=0"`
	Name     string `json:"name" binding:"required,min=1,max=200"`
	Username string `json:"username" binding:"omitempty,max=64"`
}

// ConfigResponse describes the roster layout for the mini-app client.
type ConfigResponse struct {
	Columns         []string `json:"columns"`
	DateColumns     []string `json:"date_columns"`
	HomeroomColumn  string   `json:"homeroom_column"`
	HomeroomValues  []string `json:"homeroom_values"`
	StatusColumn    string   `json:"status_column"`
	StatusValues    []string `json:"status_values"`
	UnassignedGroup string   `json:"unassigned_group"`
}
