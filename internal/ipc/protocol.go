package ipc

// Request is one control command sent to the running hunt.
type Request struct {
	Command string `json:"command"`
}

// Response reports the hunt's state after handling a Request.
type Response struct {
	OK         bool   `json:"ok"`
	State      string `json:"state,omitempty"`
	Encounters int    `json:"encounters,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}
