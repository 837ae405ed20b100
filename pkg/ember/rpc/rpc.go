// Package rpc implements the lightweight method-reflection RPC layer: a
// registry built by reflecting on a user-provided service value, exposing
// each exported method under its name as a URL segment. The package never
// hard-wires a JSON library: callers supply a JSONCodec, defaulting to
// one backed by encoding/json.
package rpc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/embercore/ember/pkg/ember/conn"
	"github.com/embercore/ember/pkg/ember/wire"
)

// JSONCodec is the pluggable marshal/unmarshal boundary the RPC layer
// consumes instead of importing a JSON library directly. A caller wanting
// a faster codec (e.g. goccy/go-json, as seen wired into the retrieval
// pack's bolt service) implements this two-method interface.
type JSONCodec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// stdCodec is the default encoding/json-backed implementation.
type stdCodec struct{}

func (stdCodec) Marshal(v any) ([]byte, error)          { return json.Marshal(v) }
func (stdCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// DefaultCodec is the zero-configuration JSONCodec every Service starts
// with.
var DefaultCodec JSONCodec = stdCodec{}

// RequestParam is the sentinel parameter type that binds the live
// *wire.Request to a method parameter instead of a JSON field.
type RequestParam = *wire.Request

var requestParamType = reflect.TypeOf((*wire.Request)(nil))

// Converter adapts one JSON-native value into a domain type before
// dispatch. It must be a unary function: func(In) (Out, error) or
// func(In) Out.
type Converter struct {
	// fn is the reflected converter function.
	fn reflect.Value
	// in is the JSON-native parameter type the converter accepts.
	in reflect.Type
}

// method describes one reflected, callable RPC method.
type method struct {
	name       string
	fn         reflect.Value
	paramNames []string
	paramTypes []reflect.Type
	// requestIdx is the index of the injected *wire.Request parameter, or
	// -1 if the method takes none.
	requestIdx int
	numOut     int
	hasErrOut  bool
}

// Service is a registry of RPC methods built by reflecting over a
// user-supplied receiver value. Mount it at a URL prefix via a
// dispatch.Mapping whose Handler is Service.Handle.
type Service struct {
	receiver   reflect.Value
	methods    map[string]method
	converters map[reflect.Type]Converter
	codec      JSONCodec
}

// New builds a Service by reflecting over receiver's exported methods.
// Every exported method becomes an RPC method named after it (first
// letter lower-cased, matching the common JSON-RPC convention); there is
// no way to exclude an exported method.
func New(receiver any, codec JSONCodec) *Service {
	if codec == nil {
		codec = DefaultCodec
	}
	s := &Service{
		receiver:   reflect.ValueOf(receiver),
		methods:    make(map[string]method),
		converters: make(map[reflect.Type]Converter),
		codec:      codec,
	}

	rt := s.receiver.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		s.register(m)
	}
	return s
}

func (s *Service) register(m reflect.Method) {
	ft := m.Func.Type()
	name := lowerFirst(m.Name)

	mm := method{
		name:       name,
		fn:         m.Func,
		requestIdx: -1,
	}

	// Parameter 0 of ft is the receiver itself (method values obtained via
	// Type.Method carry it); skip it when enumerating user parameters. The
	// injected request slot does not consume a positional name: a method
	// (req, x, y) binds x as arg0 and y as arg1.
	jsonIdx := 0
	for i := 1; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		if pt == requestParamType {
			mm.requestIdx = i - 1
			mm.paramNames = append(mm.paramNames, "")
		} else {
			mm.paramNames = append(mm.paramNames, fmt.Sprintf("arg%d", jsonIdx))
			jsonIdx++
		}
		mm.paramTypes = append(mm.paramTypes, pt)
	}

	mm.numOut = ft.NumOut()
	if mm.numOut > 0 && ft.Out(mm.numOut-1) == errType {
		mm.hasErrOut = true
	}

	s.methods[name] = mm
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// RegisterConverter adds a converter from JSON-native type in to the
// converter's result type. Before dispatch, every method parameter of that
// result type is decoded from JSON as in and then passed through fn.
func (s *Service) RegisterConverter(in reflect.Type, fn any) {
	out := reflect.TypeOf(fn).Out(0)
	s.converters[out] = Converter{fn: reflect.ValueOf(fn), in: in}
}

// envelope is the {"status":...} response shape, both success and error.
type envelope struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handle implements conn.Handler: it extracts the trailing URL path
// segment as the method name, decodes the url-encoded "data" field into
// JSON arguments, invokes the method via reflection, and renders the
// envelope response.
func (s *Service) Handle(req *wire.Request) (*wire.Response, error) {
	name := lastSegment(req.URL.Path())
	m, ok := s.methods[name]
	if !ok {
		return s.render(404, envelope{Status: "error", Error: "unknown method"}), nil
	}

	raw := ""
	if req.PostForm != nil {
		if vs := req.PostForm["data"]; len(vs) > 0 {
			raw = vs[0]
		}
	}

	args, err := s.bindArgs(m, raw, req)
	if err != nil {
		return s.render(400, envelope{Status: "error", Error: err.Error()}), nil
	}

	out := m.fn.Call(args)
	return s.renderResult(m, out), nil
}

func lastSegment(path string) string {
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// bindArgs decodes the JSON "data" object into a call argument list: the
// receiver first, then each declared parameter either bound from the
// injected *wire.Request or unmarshaled (and, if registered, converted)
// from the matching JSON field.
func (s *Service) bindArgs(m method, raw string, req *wire.Request) ([]reflect.Value, error) {
	var fields map[string]json.RawMessage
	if raw != "" {
		if err := s.codec.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("rpc: malformed data argument: %w", err)
		}
	}

	args := make([]reflect.Value, 0, len(m.paramTypes)+1)
	args = append(args, s.receiver)

	for i, pt := range m.paramTypes {
		if i == m.requestIdx {
			args = append(args, reflect.ValueOf(req))
			continue
		}

		raw, present := fields[m.paramNames[i]]
		targetType := pt
		if conv, ok := s.converters[pt]; ok {
			targetType = conv.in
		}

		v := reflect.New(targetType)
		if present {
			if err := s.codec.Unmarshal(raw, v.Interface()); err != nil {
				return nil, fmt.Errorf("rpc: parameter %q: %w", m.paramNames[i], err)
			}
		}

		arg := v.Elem()
		if conv, ok := s.converters[pt]; ok {
			converted, err := callConverter(conv, arg)
			if err != nil {
				return nil, fmt.Errorf("rpc: converter for %q: %w", m.paramNames[i], err)
			}
			arg = converted
		}
		args = append(args, arg)
	}
	return args, nil
}

func callConverter(c Converter, in reflect.Value) (reflect.Value, error) {
	out := c.fn.Call([]reflect.Value{in})
	if len(out) == 2 {
		if !out[1].IsNil() {
			return reflect.Value{}, out[1].Interface().(error)
		}
		return out[0], nil
	}
	return out[0], nil
}

func (s *Service) renderResult(m method, out []reflect.Value) *wire.Response {
	if m.hasErrOut {
		errVal := out[len(out)-1]
		if !errVal.IsNil() {
			return s.render(500, envelope{Status: "error", Error: errVal.Interface().(error).Error()})
		}
		out = out[:len(out)-1]
	}

	var result any
	if len(out) > 0 {
		result = out[0].Interface()
	}
	return s.render(200, envelope{Status: "ok", Result: result})
}

func (s *Service) render(status int, env envelope) *wire.Response {
	body, err := s.codec.Marshal(env)
	if err != nil {
		body = []byte(`{"status":"error","error":"internal error"}`)
		status = 500
	}
	resp := wire.NewResponse(status).WithBytes(body)
	resp.Header.SetString("Content-Type", "application/json; charset=utf-8")
	return resp
}

var _ conn.Handler = (*Service)(nil).Handle
