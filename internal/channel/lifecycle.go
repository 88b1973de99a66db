package channel

// LoginState is the subset of login-refresh stream/data state the
// readiness FSM cares about; the full login message is decoded by the
// (opaque) wire codec and only this classification is passed in.
type LoginState int

const (
	LoginOpenOK LoginState = iota
	LoginOther
)

// DictionaryAvailability reports which dictionaries a service
// advertises in its directory response, driving whether the FSM
// auto-downloads them before declaring readiness.
type DictionaryAvailability struct {
	HasFieldDict bool
	HasEnumDict  bool
}

// Sender issues the protocol messages the readiness FSM triggers. The
// wire encoding of each message is owned by the (opaque) codec; the FSM
// only decides when to send, not how.
type Sender interface {
	SendDirectoryRequest() error
	SendDictionaryRequest(streamID int32, name string) error
	SendDictionaryClose(streamID int32) error
}

// Lifecycle drives one session's post-handshake readiness sequence:
// login -> directory -> (optional) dictionaries -> ready. It is a pure
// state machine; callers supply a Sender to perform the side effects
// each transition requires.
type Lifecycle struct {
	state Readiness

	autoDownloadDict bool
	fieldDictStream  int32
	enumDictStream   int32

	isConsumerOrNIProvider bool
	haveDirectoryRequest   bool
}

// NewLifecycle returns a Lifecycle in ReadyInit. autoDownloadDict
// mirrors the provider's configured automatic-dictionary-download flag;
// isConsumerOrNIProvider mirrors the role check the directory-send step
// requires (only consumer and non-interactive-provider roles request a
// directory on their own behalf).
func NewLifecycle(autoDownloadDict, isConsumerOrNIProvider bool) *Lifecycle {
	return &Lifecycle{
		state:                  ReadyInit,
		autoDownloadDict:       autoDownloadDict,
		isConsumerOrNIProvider: isConsumerOrNIProvider,
	}
}

// State returns the current readiness stage.
func (l *Lifecycle) State() Readiness { return l.state }

// OnLoginRefresh handles an inbound login refresh. A non-open state
// tears the channel down (the caller is expected to close on a false
// return). An open state advances to LoggedIn, except for consumer/NI-
// provider roles, which send the directory request and advance to
// DirectorySent instead.
func (l *Lifecycle) OnLoginRefresh(st LoginState, s Sender) (ok bool, err error) {
	if st != LoginOpenOK {
		return false, nil
	}
	if l.isConsumerOrNIProvider {
		if err := s.SendDirectoryRequest(); err != nil {
			return true, err
		}
		l.state = ReadyDirectorySent
		l.haveDirectoryRequest = true
		return true, nil
	}
	l.state = ReadyLoggedIn
	return true, nil
}

// OnDirectoryResponse handles the directory response. If automatic
// dictionary download is enabled and the service advertises both field
// and enum dictionaries, it requests them (on two stream ids chosen by
// the caller, which must not collide with the login/directory streams)
// and advances to HaveDirectory; otherwise it advances straight to
// ReadyComplete.
func (l *Lifecycle) OnDirectoryResponse(avail DictionaryAvailability, fieldStream, enumStream int32, s Sender) error {
	l.state = ReadyHaveDirectory
	if !l.autoDownloadDict || !avail.HasFieldDict || !avail.HasEnumDict {
		l.state = ReadyComplete
		return nil
	}
	l.fieldDictStream = fieldStream
	l.enumDictStream = enumStream
	if err := s.SendDictionaryRequest(fieldStream, "RWFFld"); err != nil {
		return err
	}
	if err := s.SendDictionaryRequest(enumStream, "RWFEnum"); err != nil {
		return err
	}
	return nil
}

// OnDictionaryComplete handles a REFRESH_COMPLETE dictionary refresh on
// streamID, closing that dictionary stream and advancing toward
// ReadyComplete once both dictionaries are in.
func (l *Lifecycle) OnDictionaryComplete(streamID int32, s Sender) error {
	switch streamID {
	case l.fieldDictStream:
		if l.state == ReadyHaveEnumDict {
			l.state = ReadyComplete
		} else {
			l.state = ReadyHaveFieldDict
		}
	case l.enumDictStream:
		if l.state == ReadyHaveFieldDict {
			l.state = ReadyComplete
		} else {
			l.state = ReadyHaveEnumDict
		}
	default:
		return nil
	}
	return s.SendDictionaryClose(streamID)
}

// Ready reports whether the session has reached ReadyComplete.
func (l *Lifecycle) Ready() bool { return l.state == ReadyComplete }
