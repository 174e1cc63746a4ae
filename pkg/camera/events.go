package camera

type event interface {
	String() string
}

type (
	evAcquire     struct{}
	evSetFmt      struct{ cfg StreamConfig }
	evGetBuf      struct{}
	evPutBuf      struct{}
	evRegBuf      struct{}
	evUnregBuf    struct{}
	evStart       struct{}
	evStop        struct{}
	evRelease     struct{}
	evQueuedCount struct{ n *int }
	evSetParm     struct {
		id    uint32
		value int32
	}
	evGetParm struct {
		id    uint32
		value *int32
	}
	evDoAction struct {
		id    uint32
		value int32
	}
)

func (evAcquire) String() string     { return "ACQUIRE" }
func (evSetFmt) String() string      { return "SET_FMT" }
func (evGetBuf) String() string      { return "GET_BUF" }
func (evPutBuf) String() string      { return "PUT_BUF" }
func (evRegBuf) String() string      { return "REG_BUF" }
func (evUnregBuf) String() string    { return "UNREG_BUF" }
func (evStart) String() string       { return "START" }
func (evStop) String() string        { return "STOP" }
func (evRelease) String() string     { return "RELEASE" }
func (evQueuedCount) String() string { return "GET_QUEUED_BUF_COUNT" }
func (evSetParm) String() string     { return "SET_PARM" }
func (evGetParm) String() string     { return "GET_PARM" }
func (evDoAction) String() string    { return "DO_ACTION" }
