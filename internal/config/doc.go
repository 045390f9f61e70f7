// Package config parses stagerun's Lua configuration.
//
// Configs are plain Lua files executed in a sandboxed gopher-lua VM: the os,
// io, debug and module-loading facilities are removed, and a read-only
// platform table describing the current machine is injected before the file
// runs. The file must assign a global stagerun table:
//
//	stagerun = {
//	  distribution = {
//	    name = "mysqld",
//	    version = "8.0.33",
//	    archives = "/var/cache/stagerun",
//	    keyring = "/etc/stagerun/mysql.asc",
//	    executable = platform.is_windows and "bin/mysqld.exe" or "bin/mysqld",
//	  },
//	  staging = { dir = "/tmp/stagerun/mysqld", lock = true, manifest = true },
//	  launch = {
//	    args = { "--console" },
//	    success = { "ready for connections" },
//	    timeout_ms = 30000,
//	    echo = true,
//	  },
//	}
//
// distribution.platform defaults to the detected platform key
// ("linux-amd64"). Relative paths in a file are resolved against the
// directory containing it.
package config
