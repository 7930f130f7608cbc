package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	UserName        string     `json:"user_name"`
	MaxQueue        int        `json:"max_queue,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	UserID          string `json:"user_id"`
	UserName        string `json:"user_name"`
	Admin           bool   `json:"admin,omitempty"`
}

// CMD (client -> server): one company command, e.g. {"command":"invite","args":["bob"]}.
type CmdMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ID              string   `json:"id"`
	Command         string   `json:"command"`
	Args            []string `json:"args,omitempty"`
}

// RESULT (server -> client): outcome of a CMD, message surfaced verbatim.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message"`
}

// NOTICE (server -> client): company chat / mail pushed to a connected user.
type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Category        string `json:"category,omitempty"`
	Message         string `json:"message"`
}

func NewResult(ref string, ok bool, code, message string) ResultMsg {
	return ResultMsg{
		Type:            TypeResult,
		ProtocolVersion: Version,
		Ref:             ref,
		OK:              ok,
		Code:            code,
		Message:         message,
	}
}

func NewNotice(category, message string) NoticeMsg {
	return NoticeMsg{
		Type:            TypeNotice,
		ProtocolVersion: Version,
		Category:        category,
		Message:         message,
	}
}
