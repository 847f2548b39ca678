// Package config loads the optional per-CLI TOML configuration file so
// repeated invocations of the compiler or VM CLI in a host's build
// don't need to repeat every flag.
package config

import (
	"github.com/BurntSushi/toml"
)

// Compiler is the optional mecc.toml shape: default flag values the
// CLI falls back to when the corresponding flag isn't passed.
type Compiler struct {
	NativeDecls string `toml:"native_decls"`
	Verbose     bool   `toml:"verbose"`
	EmbedName   bool   `toml:"embed_name"`
	LangMajor   uint8  `toml:"lang_major"`
	LangMinor   uint8  `toml:"lang_minor"`
}

// VM is the optional mecvm.toml shape.
type VM struct {
	Verbose        bool   `toml:"verbose"`
	DiskDir        string `toml:"disk_dir"`
	DiskQuotaBytes int    `toml:"disk_quota_bytes"`
	StackWords     uint32 `toml:"stack_words"`
}

// LoadCompiler reads a mecc.toml-shaped file at path. A missing file is
// an error: toml.DecodeFile returns the underlying os error unchanged,
// so callers can test it with os.IsNotExist.
func LoadCompiler(path string) (Compiler, error) {
	var c Compiler
	_, err := toml.DecodeFile(path, &c)
	return c, err
}

// LoadVM reads a mecvm.toml-shaped file at path.
func LoadVM(path string) (VM, error) {
	var v VM
	_, err := toml.DecodeFile(path, &v)
	return v, err
}
