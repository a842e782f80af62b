package rpc

import (
	"bytes"
	"strings"

	"github.com/powerhive/minerprobe/pkg/extract"
)

const connectRefused = "Socket connect failed: Connection refused\n"

// Parse cleans and decodes a raw RPC reply and checks its STATUS.
// When lenient is set a reply without STATUS is accepted.
func Parse(raw []byte, lenient bool) (any, error) {
	if len(raw) == 0 {
		return nil, ErrNoData
	}

	cleaned := bytes.ReplaceAll(raw, []byte{0}, nil)
	if string(cleaned) == connectRefused {
		return nil, ErrConnectionFailed
	}

	doc, err := extract.Decode(cleaned)
	if err != nil {
		// Some cgminer builds concatenate sections without a separator.
		fixed := bytes.ReplaceAll(cleaned, []byte("}{"), []byte("},{"))
		if doc, err = extract.Decode(fixed); err != nil {
			return nil, ErrInvalidResponse
		}
	}

	if err := CheckStatus(doc, lenient); err != nil {
		return nil, err
	}
	return doc, nil
}

// CheckStatus inspects the STATUS field of a decoded reply. cgminer puts an
// array of objects there; BTMiner uses a bare string with the message at
// the top level.
func CheckStatus(doc any, lenient bool) error {
	status, msg, found := statusOf(doc)
	if !found {
		if lenient {
			return nil
		}
		return ErrInvalidResponse
	}

	switch strings.ToUpper(status) {
	case "S", "I":
		return nil
	case "E":
		if msg == "" {
			msg = "Unknown error"
		}
		return &StatusError{Status: "E", Msg: msg}
	default:
		return &StatusError{Status: status, Msg: "Unknown status"}
	}
}

func statusOf(doc any) (status, msg string, found bool) {
	if s, ok := extract.Pointer(doc, "/STATUS/0/STATUS"); ok {
		status, found = extract.String(s)
		if m, ok := extract.Pointer(doc, "/STATUS/0/Msg"); ok {
			msg, _ = extract.String(m)
		}
		return status, msg, found
	}
	if s, ok := extract.Pointer(doc, "/STATUS"); ok {
		if status, found = s.(string); found {
			if m, ok := extract.Pointer(doc, "/Msg"); ok {
				msg, _ = extract.String(m)
			}
		}
	}
	return status, msg, found
}
