package server

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

type methodType struct {
	method     reflect.Method
	ArgType    reflect.Type
	ReplyType  reflect.Type
	hasContext bool // first argument is a context.Context
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType // wire name → method
}

// NewService scans rcvr for methods that can be invoked remotely.
func NewService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("server: receiver must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: receiver must point to a struct, got %s", typ.Elem().Kind())
	}
	svc := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	svc.registerMethods()
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("server: %s has no invocable methods", svc.name)
	}
	return svc, nil
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// registerMethods keeps exported methods shaped like
//
//	func (r *T) Name(args *A, reply *R) error
//	func (r *T) Name(ctx context.Context, args *A, reply *R) error
//
// and files them under their snake_case name.
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumOut() != 1 || mt.Out(0) != errorType {
			continue
		}

		first := 1
		hasContext := false
		switch {
		case mt.NumIn() == 3:
		case mt.NumIn() == 4 && mt.In(1) == contextType:
			first, hasContext = 2, true
		default:
			continue
		}
		if mt.In(first).Kind() != reflect.Ptr || mt.In(first+1).Kind() != reflect.Ptr {
			continue
		}

		s.method[snakeCase(method.Name)] = &methodType{
			method:     method,
			ArgType:    mt.In(first).Elem(),
			ReplyType:  mt.In(first + 1).Elem(),
			hasContext: hasContext,
		}
	}
}

// Call invokes the method via reflection.
func (s *service) Call(ctx context.Context, mType *methodType, argv, replyv reflect.Value) error {
	args := []reflect.Value{s.rcvr, argv, replyv}
	if mType.hasContext {
		args = []reflect.Value{s.rcvr, reflect.ValueOf(ctx), argv, replyv}
	}
	results := mType.method.Func.Call(args)
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// snakeCase turns a Go method name into its wire name:
// CreateSurface → create_surface, ReleaseFD → release_fd.
func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					b.WriteByte('_')
				}
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
