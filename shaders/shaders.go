// Package shaders loads precompiled SPIR-V byte-code. The GLSL sources live next
// to this file. Run `go generate` to compile them with glslc.
package shaders

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"vkframe/unsafer"
)

//go:generate ./compile.sh

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// ErrNotSPIRV is returned for files which are not SPIR-V modules.
var ErrNotSPIRV = errors.New("not a SPIR-V module")

// Dir reads shaders from a directory on disk.
type Dir string

// Shader returns the byte-code in file name of the directory.
func (d Dir) Shader(name string) ([]byte, error) {
	code, err := os.ReadFile(filepath.Join(string(d), name))
	if err != nil {
		return nil, errors.Wrapf(err, "reading shader %s", name)
	}

	if err := Validate(code); err != nil {
		return nil, errors.Wrapf(err, "shader %s", name)
	}
	return code, nil
}

// FS reads shaders from a file system, for example an embed.FS.
type FS struct {
	fsys fs.FS
}

// NewFS returns a shader source reading from fsys.
func NewFS(fsys fs.FS) FS {
	return FS{fsys: fsys}
}

// Shader returns the byte-code in file name of the file system.
func (f FS) Shader(name string) ([]byte, error) {
	code, err := fs.ReadFile(f.fsys, name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading shader %s", name)
	}

	if err := Validate(code); err != nil {
		return nil, errors.Wrapf(err, "shader %s", name)
	}
	return code, nil
}

// Validate checks that code looks like a SPIR-V module: whole 32 bit words and
// the magic number up front.
func Validate(code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return errors.Mark(errors.Newf("length %d is not a positive multiple of 4", len(code)), ErrNotSPIRV)
	}

	words := unsafer.SliceBytesToUint32(code)
	if words[0] != spirvMagic {
		return errors.Mark(errors.Newf("bad magic %#08x", words[0]), ErrNotSPIRV)
	}
	return nil
}
