package runtime

import (
	"encoding/binary"
	"fmt"
)

// panicPayload is the structured message a contract passes to panic. Each
// field is optional; decoding stops at the first missing one.
type panicPayload struct {
	msg  *string
	file *string
	line *uint32
	col  *uint32
}

type payloadReader struct {
	data []byte
}

func (p *payloadReader) u32() (uint32, bool) {
	if len(p.data) < 4 {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(p.data)
	p.data = p.data[4:]
	return v, true
}

func (p *payloadReader) str() (string, bool) {
	n, ok := p.u32()
	if !ok || uint64(len(p.data)) < uint64(n) {
		return "", false
	}
	s := string(p.data[:n])
	p.data = p.data[n:]
	return s, true
}

func decodePanicPayload(raw []byte) panicPayload {
	var out panicPayload
	r := &payloadReader{data: raw}

	msg, ok := r.str()
	if !ok {
		return out
	}
	out.msg = &msg

	file, ok := r.str()
	if !ok {
		return out
	}
	out.file = &file

	line, ok := r.u32()
	if !ok {
		return out
	}
	out.line = &line

	if col, ok := r.u32(); ok {
		out.col = &col
	}
	return out
}

func (p panicPayload) String() string {
	msg, file := "<msg was stripped>", "<unknown>"
	var line, col uint32
	if p.msg != nil {
		msg = *p.msg
	}
	if p.file != nil {
		file = *p.file
	}
	if p.line != nil {
		line = *p.line
	}
	if p.col != nil {
		col = *p.col
	}
	return fmt.Sprintf("%s, %s:%d:%d", msg, file, line, col)
}

// EncodePanicPayload builds a payload in the format panic decodes.
func EncodePanicPayload(msg, file string, line, col uint32) []byte {
	out := make([]byte, 0, 16+len(msg)+len(file))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(msg)))
	out = append(out, msg...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(file)))
	out = append(out, file...)
	out = binary.LittleEndian.AppendUint32(out, line)
	out = binary.LittleEndian.AppendUint32(out, col)
	return out
}
