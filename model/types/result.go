package types

// Result is the uniform tool-call return envelope delivered back to the
// agent runtime.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewResult(output string) *Result {
	return &Result{Success: true, Output: output}
}

func NewErrorResult(err error) *Result {
	if err == nil {
		return &Result{Success: true}
	}
	return &Result{Success: false, Error: err.Error()}
}
