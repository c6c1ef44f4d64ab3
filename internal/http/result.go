package httpapi

// Result is the guest API envelope: {"ok":true,"data":...} on
// success, {"ok":false,"error":{"code","message"}} on failure.
type Result[T any] struct {
	OK    bool       `json:"ok"`
	Data  T          `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Ok[T any](data T) Result[T] {
	return Result[T]{OK: true, Data: data}
}

func Fail(code, message string) Result[any] {
	return Result[any]{OK: false, Error: &ErrorBody{Code: code, Message: message}}
}
