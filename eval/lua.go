package eval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/pithecene-io/specbridge/engine"
)

const (
	promiseTypeName = "promise"
	chainTypeName   = "chain"
	// maxConvertDepth bounds table conversion; deeper (or cyclic) tables
	// are cut off with nil.
	maxConvertDepth = 64
)

// LuaError reports a callback that failed to compile or raised an error.
type LuaError struct {
	Source string
	Err    error
}

func (e *LuaError) Error() string {
	var apiErr *lua.ApiError
	if errors.As(e.Err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return e.Err.Error()
}

func (e *LuaError) Unwrap() error {
	return e.Err
}

// StackTrace returns the interpreter stack trace, if one was captured.
func (e *LuaError) StackTrace() string {
	var apiErr *lua.ApiError
	if errors.As(e.Err, &apiErr) {
		return apiErr.StackTrace
	}
	return ""
}

// LuaEvaluator evaluates sources written as Lua function expressions, e.g.
//
//	function(n) cy.wrap(n):should("eq", n) end
//
// Argument data is passed positionally. A fresh interpreter is used per
// evaluation; it exposes:
//   - cy: one function per registered engine command, each enqueueing the
//     command and returning a chain whose methods enqueue further commands
//   - promise.resolve(v), promise.reject(msg): settled promises
//   - config(key), env(key): reads from the engine's stores
type LuaEvaluator struct{}

// NewLuaEvaluator creates a Lua evaluator.
func NewLuaEvaluator() *LuaEvaluator {
	return &LuaEvaluator{}
}

// Evaluate implements Evaluator.
func (ev *LuaEvaluator) Evaluate(ctx context.Context, scope *Scope, source string, args []any) (any, error) {
	L := newLuaState(ctx)
	defer L.Close()

	installPromise(L)
	installCy(L, scope)
	installStores(L, scope)

	chunk, err := L.LoadString("return " + strings.TrimSpace(source))
	if err != nil {
		return nil, &LuaError{Source: source, Err: err}
	}
	if err := L.CallByParam(lua.P{Fn: chunk, NRet: 1, Protect: true}); err != nil {
		return nil, &LuaError{Source: source, Err: err}
	}
	fnVal := L.Get(-1)
	L.Pop(1)

	fn, ok := fnVal.(*lua.LFunction)
	if !ok {
		return nil, &LuaError{
			Source: source,
			Err:    fmt.Errorf("callback source must evaluate to a function, got %s", fnVal.Type()),
		}
	}

	luaArgs := make([]lua.LValue, len(args))
	for i, a := range args {
		luaArgs[i] = toLua(L, a)
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, luaArgs...); err != nil {
		return nil, &LuaError{Source: source, Err: err}
	}
	ret := L.Get(-1)
	L.Pop(1)

	return fromLua(ret, 0), nil
}

func newLuaState(ctx context.Context) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	// No filesystem access from callbacks.
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetContext(ctx)
	return L
}

func installPromise(L *lua.LState) {
	L.NewTypeMetatable(promiseTypeName)

	lib := L.NewTable()
	L.SetField(lib, "resolve", L.NewFunction(func(L *lua.LState) int {
		L.Push(newPromiseValue(L, Resolved(fromLua(L.Get(1), 0))))
		return 1
	}))
	L.SetField(lib, "reject", L.NewFunction(func(L *lua.LState) int {
		msg := L.OptString(1, "promise rejected")
		L.Push(newPromiseValue(L, Rejected(errors.New(msg))))
		return 1
	}))
	L.SetGlobal("promise", lib)
}

func newPromiseValue(L *lua.LState, t Thenable) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = t
	L.SetMetatable(ud, L.GetTypeMetatable(promiseTypeName))
	return ud
}

// installCy exposes the engine's commands. cy.name(...) and chain:name(...)
// both enqueue and return a chain userdata, which converts to *Chain.
func installCy(L *lua.LState, scope *Scope) {
	cy := L.NewTable()
	methods := L.NewTable()

	for _, name := range scope.Engine.Commands() {
		L.SetField(cy, name, L.NewFunction(enqueueFn(scope, name, 1)))
		L.SetField(methods, name, L.NewFunction(enqueueFn(scope, name, 2)))
	}
	mt := L.NewTypeMetatable(chainTypeName)
	L.SetField(mt, "__index", methods)
	L.SetGlobal("cy", cy)
}

func enqueueFn(scope *Scope, name string, firstArg int) lua.LGFunction {
	return func(L *lua.LState) int {
		var args []any
		for i := firstArg; i <= L.GetTop(); i++ {
			args = append(args, fromLua(L.Get(i), 0))
		}
		if err := scope.Enqueue(name, args...); err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		ud := L.NewUserData()
		ud.Value = &Chain{Last: name}
		L.SetMetatable(ud, L.GetTypeMetatable(chainTypeName))
		L.Push(ud)
		return 1
	}
}

func installStores(L *lua.LState, scope *Scope) {
	L.SetGlobal("config", L.NewFunction(func(L *lua.LState) int {
		v, _ := scope.Config(L.CheckString(1))
		L.Push(toLua(L, v))
		return 1
	}))
	L.SetGlobal("env", L.NewFunction(func(L *lua.LState) int {
		v, _ := scope.Env(L.CheckString(1))
		L.Push(toLua(L, v))
		return 1
	}))
}

// fromLua converts a Lua value to its Go form. Integral numbers become
// int64, sequences []any and other tables map[string]any.
func fromLua(v lua.LValue, depth int) any {
	if depth > maxConvertDepth {
		return nil
	}
	switch x := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LString:
		return string(x)
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case *lua.LTable:
		return tableToGo(x, depth+1)
	case *lua.LUserData:
		return x.Value
	case *lua.LFunction:
		return "[function]"
	}
	return v.String()
}

func tableToGo(t *lua.LTable, depth int) any {
	entries := 0
	t.ForEach(func(_, _ lua.LValue) { entries++ })

	if n := t.MaxN(); n > 0 && n == entries {
		out := make([]any, n)
		for i := 1; i <= n; i++ {
			out[i-1] = fromLua(t.RawGetInt(i), depth)
		}
		return out
	}

	out := make(map[string]any, entries)
	t.ForEach(func(k, v lua.LValue) {
		out[k.String()] = fromLua(v, depth)
	})
	return out
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case []any:
		t := L.NewTable()
		for i, e := range x {
			t.RawSetInt(i+1, toLua(L, e))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range x {
			t.RawSetString(k, toLua(L, e))
		}
		return t
	case Thenable:
		return newPromiseValue(L, x)
	}
	if f, ok := engine.ToFloat(v); ok {
		return lua.LNumber(f)
	}
	return lua.LString(fmt.Sprint(v))
}
