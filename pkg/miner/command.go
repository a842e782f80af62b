package miner

import (
	"encoding/json"
	"fmt"
)

// CommandKind selects the transport a Command is sent over.
type CommandKind uint8

const (
	// KindRPC is the cgminer-style JSON API on TCP port 4028.
	KindRPC CommandKind = iota + 1
	// KindWeb is a vendor HTTP endpoint.
	KindWeb
)

func (k CommandKind) String() string {
	switch k {
	case KindRPC:
		return "rpc"
	case KindWeb:
		return "web"
	default:
		return "unknown"
	}
}

// Command identifies one request to a miner. It is comparable and is used
// directly as a map key when deduplicating requests; two commands are the
// same request iff all fields are equal.
//
// Parameters holds canonical JSON text ("" when absent) so that the struct
// stays comparable.
type Command struct {
	Kind       CommandKind
	Name       string
	Method     string
	Parameters string
}

// RPC builds an RPC command. A nil parameter is omitted on the wire.
func RPC(name string, param any) Command {
	return Command{Kind: KindRPC, Name: name, Parameters: canonical(param)}
}

// Web builds an HTTP command. Method defaults to GET.
func Web(name, method string, params any) Command {
	if method == "" {
		method = "GET"
	}
	return Command{Kind: KindWeb, Name: name, Method: method, Parameters: canonical(params)}
}

// IsRPC reports whether the command is sent over the RPC transport.
func (c Command) IsRPC() bool { return c.Kind == KindRPC }

// IsWeb reports whether the command is sent over HTTP.
func (c Command) IsWeb() bool { return c.Kind == KindWeb }

// Param decodes the stored parameters. It returns nil when none are set.
func (c Command) Param() any {
	if c.Parameters == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(c.Parameters), &v); err != nil {
		return nil
	}
	return v
}

// ParamString returns the parameter as a plain string, the form expected by
// cgminer ("summary", "0,1"). Non-string parameters are returned as JSON.
func (c Command) ParamString() string {
	switch v := c.Param().(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return c.Parameters
	}
}

func (c Command) String() string {
	switch c.Kind {
	case KindWeb:
		if c.Parameters != "" {
			return fmt.Sprintf("web %s %s %s", c.Method, c.Name, c.Parameters)
		}
		return fmt.Sprintf("web %s %s", c.Method, c.Name)
	default:
		if c.Parameters != "" {
			return fmt.Sprintf("rpc %s %s", c.Name, c.Parameters)
		}
		return "rpc " + c.Name
	}
}

// canonical renders a parameter as stable JSON text. encoding/json sorts
// map keys, so equal values always produce equal text.
func canonical(v any) string {
	if v == nil {
		return ""
	}
	if raw, ok := v.(json.RawMessage); ok {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return string(raw)
		}
		v = decoded
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
