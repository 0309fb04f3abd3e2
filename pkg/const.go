package pkg

const (
	HeaderTraceId string = "X-Trace-Id"
)

const (
	TraceId   string = "trace_id"
	SessionId string = "session_id"
)
