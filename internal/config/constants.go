package config

// Lua schema field names and globals
const (
	luaGlobalStagerun = "stagerun"

	luaFieldDistribution = "distribution"
	luaFieldStaging      = "staging"
	luaFieldLaunch       = "launch"

	luaFieldName            = "name"
	luaFieldVersion         = "version"
	luaFieldPlatform        = "platform"
	luaFieldArchives        = "archives"
	luaFieldKeyring         = "keyring"
	luaFieldAllowUnverified = "allow_unverified"
	luaFieldExecutable      = "executable"

	luaFieldDir            = "dir"
	luaFieldLock           = "lock"
	luaFieldManifest       = "manifest"
	luaFieldInspectHolders = "inspect_holders"

	luaFieldArgs      = "args"
	luaFieldEnv       = "env"
	luaFieldWorkDir   = "workdir"
	luaFieldSuccess   = "success"
	luaFieldTimeoutMS = "timeout_ms"
	luaFieldEcho      = "echo"
)

const (
	// DefaultTimeoutMS is used when launch.timeout_ms is not set.
	DefaultTimeoutMS = 30000

	// MaxArgCount bounds launch.args.
	MaxArgCount = 256

	// MaxSuccessPatterns bounds launch.success.
	MaxSuccessPatterns = 64

	// EnvConfigPath names the environment variable overriding the config path.
	EnvConfigPath = "STAGERUN_CONFIG"

	// EnvHome names the environment variable overriding the stagerun home.
	EnvHome = "STAGERUN_HOME"

	// DefaultFileName is the config file looked up in the stagerun home.
	DefaultFileName = "stagerun.lua"
)
