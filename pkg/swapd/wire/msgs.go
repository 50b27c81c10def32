package wire

// Peer -> daemon

type HelloMsg struct {
	MsgType  string `json:"msg_type"`
	Username string `json:"username"`
}

type RequestFileMsg struct {
	MsgType  string `json:"msg_type"`
	Filename string `json:"filename"`
}

// Daemon -> peer

type HelloAckMsg struct {
	MsgType  string `json:"msg_type"`
	Username string `json:"username"`
}

// TransferStartMsg announces that the chunks for a transfer follow as
// binary frames, in order, starting at StartOffset.
type TransferStartMsg struct {
	MsgType     string `json:"msg_type"`
	TransferID  string `json:"transfer_id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	StartOffset int64  `json:"start_offset"`
}

type TransferDoneMsg struct {
	MsgType    string `json:"msg_type"`
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

type ErrorMsg struct {
	MsgType string `json:"msg_type"`
	Message string `json:"message"`
}

const (
	TypeHello         = "hello"
	TypeHelloAck      = "hello_ack"
	TypeRequestFile   = "request_file"
	TypeTransferStart = "transfer_start"
	TypeTransferDone  = "transfer_done"
	TypeError         = "error"
)
