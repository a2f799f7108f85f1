package response

// Response represents a standard API response format
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries the machine-readable error code alongside the message
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Page wraps a paginated list
type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// Success returns a standard success response wrapping the data
func Success(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// Paginated returns a success response wrapping a page of items
func Paginated(items interface{}, total int64, page, limit int) Response {
	return Success(Page{Items: items, Total: total, Page: page, Limit: limit})
}

// Error returns a standard error response
func Error(code, message string) Response {
	return Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	}
}

// ErrorWithDetails returns an error response with structured details (e.g. validation issues)
func ErrorWithDetails(code, message string, details interface{}) Response {
	resp := Error(code, message)
	resp.Error.Details = details
	return resp
}
