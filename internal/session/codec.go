package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const payloadFormatVersion = 1

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return errors.New("payload field too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func encodePayload(p *Payload) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(payloadFormatVersion)

	for _, s := range []string{p.UserID, p.Username, p.TenantID, p.CSRFToken} {
		if err := writeString(&buf, s); err != nil {
			return nil, err
		}
	}

	var flags byte
	if p.IsAdmin {
		flags |= 1
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, p.IssuedAt.Unix()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, p.ExpiresAt.Unix()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodePayload(data []byte) (*Payload, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != payloadFormatVersion {
		return nil, errors.New("unknown payload version")
	}

	p := &Payload{}
	for _, dst := range []*string{&p.UserID, &p.Username, &p.TenantID, &p.CSRFToken} {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		*dst = s
	}

	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.IsAdmin = flags&1 != 0

	var issued, expires int64
	if err := binary.Read(r, binary.BigEndian, &issued); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &expires); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.New("trailing payload bytes")
	}
	p.IssuedAt = time.Unix(issued, 0)
	p.ExpiresAt = time.Unix(expires, 0)

	return p, nil
}
