package provider

// ProtocolEncoder produces the outbound bytes for the readiness FSM's
// self-initiated messages (directory request, dictionary request/close).
// It sits at the same opaque wire-codec boundary as EncodeFunc: this
// package decides *when* to send, the encoder decides *how* to spell it
// on the wire.
type ProtocolEncoder interface {
	EncodeDirectoryRequest(dst []byte) (int, error)
	EncodeDictionaryRequest(dst []byte, streamID int32, name string) (int, error)
	EncodeDictionaryClose(dst []byte, streamID int32) (int, error)
}

// sessionSender adapts a Session's buffer manager to channel.Sender so
// the readiness FSM can push its own protocol messages through the same
// acquire/submit path the burst scheduler uses. A nil ProtocolEncoder
// makes every send a no-op, letting the FSM still advance through its
// states when a concrete deployment has not wired a protocol encoder.
type sessionSender struct {
	thread *Thread
	sess   *Session
}

func (s *sessionSender) SendDirectoryRequest() error {
	return s.send(func(dst []byte) (int, error) {
		return s.thread.cfg.Protocol.EncodeDirectoryRequest(dst)
	})
}

func (s *sessionSender) SendDictionaryRequest(streamID int32, name string) error {
	return s.send(func(dst []byte) (int, error) {
		return s.thread.cfg.Protocol.EncodeDictionaryRequest(dst, streamID, name)
	})
}

func (s *sessionSender) SendDictionaryClose(streamID int32) error {
	return s.send(func(dst []byte) (int, error) {
		return s.thread.cfg.Protocol.EncodeDictionaryClose(dst, streamID)
	})
}

func (s *sessionSender) send(encode func(dst []byte) (int, error)) error {
	if s.thread.cfg.Protocol == nil {
		return nil
	}
	const estimatedLen = 256
	dst, err := s.sess.Buffers.Acquire(s.sess.Channel.Channel, estimatedLen)
	if err != nil {
		return err
	}
	n, err := encode(dst)
	if err != nil {
		return err
	}
	_, err = s.sess.Buffers.Submit(s.sess.Channel.Channel, n, true)
	return err
}
