package protocol

import "sync/atomic"

// CommandHandler handles one decoded command. The handler decodes its own
// fixed-width arguments from data and sends any response itself.
type CommandHandler func(cmdID uint8, data *[]byte) error

// Transport is the device-side framing layer. It validates incoming frames
// (length, sequence, CRC, trailing sync), dispatches the contained command,
// and ACKs every frame. On any framing violation it drops to an
// unsynchronized state and scans forward for the next sync byte.
type Transport struct {
	isSynchronized uint32 // atomic bool
	nextSequence   uint32 // atomic; expected sequence byte (0x10..0x1F)

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func() // invoked when the host restarts its sequence
	flushCallback func() // invoked to push an ACK out immediately
}

// NewTransport creates a device transport writing responses to output and
// dispatching commands to handler.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		isSynchronized: 1,
		nextSequence:   MessageDest,
		output:         output,
		handler:        handler,
	}
}

// Receive consumes as many complete frames from input as are available.
// This is the firmware's main-loop entry point for host traffic.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.getSynchronized() {
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}
			if syncPos < 0 {
				data = nil
				break
			}
			data = data[syncPos+1:]
			t.setSynchronized(true)
			t.encodeAckNak()
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			t.setSynchronized(false)
			continue
		}

		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			t.setSynchronized(false)
			continue
		}

		if len(data) < msgLen {
			break // partial frame, wait for more bytes
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			t.setSynchronized(false)
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			t.setSynchronized(false)
			continue
		}

		frame := data[MessageHeaderSize : msgLen-MessageTrailerSize]
		data = data[msgLen:]

		expectedSeq := uint8(atomic.LoadUint32(&t.nextSequence))
		if seq == MessageDest && expectedSeq != MessageDest {
			// Host restarted; fall back to the initial sequence.
			atomic.StoreUint32(&t.nextSequence, MessageDest)
			expectedSeq = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}

		if seq == expectedSeq {
			nextSeq := ((seq + 1) & MessageSeqMask) | MessageDest
			atomic.StoreUint32(&t.nextSequence, uint32(nextSeq))
			_ = t.dispatchFrame(frame)
		}
		// ACK regardless; on a sequence mismatch this doubles as a NAK
		// carrying the sequence we expect.
		t.encodeAckNak()
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

// dispatchFrame decodes the command ID and hands the payload to the handler.
// Each frame carries exactly one command.
func (t *Transport) dispatchFrame(frame []byte) (err error) {
	defer func() {
		// A panicking handler must not take the transport down.
		if r := recover(); r != nil {
			t.setSynchronized(false)
		}
	}()

	cmdID, err := ReadUint8(&frame)
	if err != nil {
		t.setSynchronized(false)
		return err
	}
	if t.handler != nil {
		return t.handler(cmdID, &frame)
	}
	return nil
}

// encodeAckNak emits a payloadless frame carrying the next expected
// sequence. It is flushed immediately; the host waits for the ACK before it
// reads responses.
func (t *Transport) encodeAckNak() {
	ns := uint8(atomic.LoadUint32(&t.nextSequence))
	crc := CRC16([]byte{MessageLengthMin, ns})

	t.output.Output([]byte{
		MessageLengthMin,
		ns,
		uint8(crc >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})

	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one framed response. frameData fills in the payload;
// the header length field and CRC are patched in afterwards.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()
	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	t.output.Output([]byte{0, seq})

	frameData(t.output)

	written := len(t.output.DataSince(cursor))
	t.output.Update(cursor, uint8(written+MessageTrailerSize))

	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{
		uint8(crc >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
}

// SendResponse frames a response for cmdID with the given status byte.
// extra, if non-nil, appends any result fields after the status.
func (t *Transport) SendResponse(cmdID uint8, status uint8, extra func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		WriteUint8(output, cmdID)
		WriteUint8(output, status)
		if extra != nil {
			extra(output)
		}
	})
}

// Reset restores the transport to its initial synchronized state.
func (t *Transport) Reset() {
	atomic.StoreUint32(&t.isSynchronized, 1)
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback registers a callback for host restarts.
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback registers a callback that pushes buffered output to the
// wire; used so ACKs are not held back until the main loop flushes.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

func (t *Transport) getSynchronized() bool {
	return atomic.LoadUint32(&t.isSynchronized) != 0
}

func (t *Transport) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&t.isSynchronized, 1)
	} else {
		atomic.StoreUint32(&t.isSynchronized, 0)
	}
}
