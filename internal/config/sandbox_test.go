package config

import (
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestSandboxLuaVM(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
		errMsg  string
	}{
		// Safe operations that should work
		{name: "string operations allowed", code: `x = string.upper("hello")`},
		{name: "table operations allowed", code: `t = {1, 2, 3}; table.insert(t, 4)`},
		{name: "math operations allowed", code: `x = math.floor(3.7)`},
		{name: "pairs allowed", code: `t = {a=1, b=2}; for k,v in pairs(t) do end`},

		// Operations that should fail
		{name: "os.execute blocked", code: `os.execute("ls")`, wantErr: true, errMsg: "attempt to index"},
		{name: "os.getenv blocked", code: `x = os.getenv("PATH")`, wantErr: true, errMsg: "attempt to index"},
		{name: "io.open blocked", code: `f = io.open("/etc/passwd")`, wantErr: true, errMsg: "attempt to index"},
		{name: "require blocked", code: `socket = require("socket")`, wantErr: true, errMsg: "attempt to call"},
		{name: "dofile blocked", code: `dofile("/tmp/evil.lua")`, wantErr: true, errMsg: "attempt to call"},
		{name: "loadstring blocked", code: `f = loadstring("return 1+1")`, wantErr: true, errMsg: "attempt to call"},
		{name: "debug blocked", code: `debug.getinfo(1)`, wantErr: true, errMsg: "attempt to index"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			L := newSandboxedVM()
			defer L.Close()

			err := L.DoString(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("DoString(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("DoString(%q) error = %v, want substring %q", tt.code, err, tt.errMsg)
			}
		})
	}
}

func TestNewSandboxedVM(t *testing.T) {
	L := newSandboxedVM()
	defer L.Close()

	if v := L.GetGlobal("os"); v.Type() != lua.LTNil {
		t.Errorf("os = %v, want nil", v.Type())
	}
	if v := L.GetGlobal("string"); v.Type() != lua.LTTable {
		t.Errorf("string = %v, want table", v.Type())
	}
}
