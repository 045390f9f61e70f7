package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable exposes info to Lua as a read-only global "platform"
// table. It must be called before any user configuration code runs.
func InjectPlatformTable(L *lua.LState, info *Info) error {
	tbl := L.NewTable()

	L.SetField(tbl, "os", lua.LString(info.OS))
	L.SetField(tbl, "arch", lua.LString(info.Arch))
	L.SetField(tbl, "arch_raw", lua.LString(info.ArchRaw))
	L.SetField(tbl, "key", lua.LString(info.Key()))
	L.SetField(tbl, "exe_suffix", lua.LString(info.ExecutableSuffix()))

	L.SetField(tbl, "is_linux", lua.LBool(info.IsLinux()))
	L.SetField(tbl, "is_macos", lua.LBool(info.IsMacOS()))
	L.SetField(tbl, "is_windows", lua.LBool(info.IsWindows()))

	if info.IsLinux() && info.Platform != "" {
		distro := L.NewTable()
		L.SetField(distro, "id", lua.LString(info.Platform))
		L.SetField(distro, "family", lua.LString(info.Family))
		L.SetField(distro, "version", lua.LString(info.Version))
		L.SetField(tbl, "distro", distro)
	}

	// when(cond, value) returns value if cond is true, nil otherwise
	L.SetField(tbl, "when", L.NewFunction(func(L *lua.LState) int {
		if L.CheckBool(1) {
			L.Push(L.Get(2))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))

	L.SetGlobal("platform", makeReadOnly(L, tbl))
	return nil
}

// makeReadOnly returns an empty proxy whose metatable forwards reads to
// table and rejects writes.
func makeReadOnly(L *lua.LState, table *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", table)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform table is read-only and cannot be modified")
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
