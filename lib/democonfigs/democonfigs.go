package democonfigs

// configs used in demo executables

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"

	fl "lfupload/lib/filelogger"
	"lfupload/lib/formdata"
	"lfupload/lib/hashtools"
	"lfupload/lib/logx"
)

type LimitsCfg struct {
	MaxHeaderBytes    int   `toml:"max_header_bytes"`
	MaxMemory         int64 `toml:"max_memory"`
	MaxFields         int   `toml:"max_fields"`
	MaxFileCount      int   `toml:"max_file_count"`
	MaxFileSingleSize int64 `toml:"max_file_size"`
	MaxFileAllSize    int64 `toml:"max_files_size"`
}

type ServerCfg struct {
	HTTPBind string `toml:"httpbind"`
	Path     string `toml:"path"`
	Indent   string `toml:"indent"`

	TempDir    string   `toml:"tmpdir"`
	ChunkSize  int      `toml:"chunk_size"`
	Hash       string   `toml:"hash"`
	Normalize  bool     `toml:"normalize_filenames"`
	Fields     []string `toml:"fields"`
	FileFields []string `toml:"file_fields"`

	LogLevel string `toml:"log_level"`
	LogColor string `toml:"log_color"`

	Limits LimitsCfg `toml:"limits"`
}

var DefaultServerCfg = ServerCfg{
	HTTPBind:  "127.0.0.1:1234",
	Path:      "/upload",
	TempDir:   "_demo/demoupload/tmp",
	ChunkSize: formdata.DefaultChunkSize,
	Hash:      "default",
	Normalize: true,
	LogLevel:  "debug",
	LogColor:  "auto",
	Limits: LimitsCfg{
		MaxHeaderBytes:    formdata.DefaultLimits.MaxHeaderBytes,
		MaxMemory:         formdata.DefaultLimits.MaxMemory,
		MaxFields:         formdata.DefaultLimits.MaxFields,
		MaxFileCount:      formdata.DefaultLimits.MaxFileCount,
		MaxFileSingleSize: formdata.DefaultLimits.MaxFileSingleSize,
		MaxFileAllSize:    formdata.DefaultLimits.MaxFileAllSize,
	},
}

func checkUndecoded(md toml.MetaData) error {
	if u := md.Undecoded(); len(u) != 0 {
		keys := make([]string, len(u))
		for i := range u {
			keys[i] = u[i].String()
		}
		return fmt.Errorf("unrecognised keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// ParseServerCfg parses TOML text over defaults.
func ParseServerCfg(s string) (c ServerCfg, err error) {
	c = DefaultServerCfg
	md, err := toml.Decode(s, &c)
	if err != nil {
		return ServerCfg{}, xerrors.Errorf("toml.Decode: %w", err)
	}
	if err = checkUndecoded(md); err != nil {
		return ServerCfg{}, err
	}
	return
}

// LoadServerCfg reads TOML file over defaults.
func LoadServerCfg(file string) (c ServerCfg, err error) {
	c = DefaultServerCfg
	md, err := toml.DecodeFile(file, &c)
	if err != nil {
		return ServerCfg{}, xerrors.Errorf("toml.DecodeFile(%q): %w", file, err)
	}
	if err = checkUndecoded(md); err != nil {
		return ServerCfg{}, xerrors.Errorf("%s: %w", file, err)
	}
	return
}

// FormConfig converts into decoder config; Env is left for caller.
func (c ServerCfg) FormConfig() (fc formdata.Config, err error) {
	ht, err := hashtools.ParseHashType(c.Hash)
	if err != nil {
		return fc, xerrors.Errorf("hash %q: %w", c.Hash, err)
	}
	fc = formdata.Config{
		TempDir:            c.TempDir,
		ChunkSize:          c.ChunkSize,
		HashType:           ht,
		NormalizeFileNames: c.Normalize,
		Fields:             c.Fields,
		FileFields:         c.FileFields,
		Limits: formdata.Limits{
			MaxHeaderBytes:    c.Limits.MaxHeaderBytes,
			MaxMemory:         c.Limits.MaxMemory,
			MaxFields:         c.Limits.MaxFields,
			MaxFileCount:      c.Limits.MaxFileCount,
			MaxFileSingleSize: c.Limits.MaxFileSingleSize,
			MaxFileAllSize:    c.Limits.MaxFileAllSize,
		},
	}
	return
}

func (c ServerCfg) LogParams() (lvl logx.Level, color fl.UseColor, err error) {
	lvl, ok := logx.ParseLevel(c.LogLevel)
	if !ok {
		return 0, 0, fmt.Errorf("unrecognised log level %q", c.LogLevel)
	}
	color, ok = fl.ParseColor(c.LogColor)
	if !ok {
		return 0, 0, fmt.Errorf("unrecognised log color mode %q", c.LogColor)
	}
	return
}
