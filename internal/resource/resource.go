// Package resource loads query text from files.
package resource

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/roach88/xqflow/internal/message"
)

// ReadQuery reads the query stored at name in fsys.
//
// The file is decoded as UTF-8 unless it starts with a byte order mark, in
// which case the BOM selects the encoding. Every line of the result ends
// with "\n".
func ReadQuery(fsys fs.FS, name string) (string, error) {
	return readQuery(fsys, name, name)
}

// ReadQueryFile reads a query from the local file system.
func ReadQueryFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", message.WrapError(message.ErrCodeResource, err, "resolve query file %s", path)
	}
	return readQuery(os.DirFS(filepath.Dir(abs)), filepath.Base(abs), path)
}

// readQuery reads name from fsys; display is the name used in errors.
func readQuery(fsys fs.FS, name, display string) (string, error) {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", message.WrapError(message.ErrCodeResource, err, "query file %s does not exist", display)
		}
		return "", message.WrapError(message.ErrCodeResource, err, "query file %s is not readable", display)
	}
	if !info.Mode().IsRegular() {
		return "", message.NewError(message.ErrCodeResource, "query file %s is not readable", display)
	}

	f, err := fsys.Open(name)
	if err != nil {
		return "", message.WrapError(message.ErrCodeResource, err, "query file %s is not readable", display)
	}
	defer f.Close()

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	scanner := bufio.NewScanner(transform.NewReader(f, decoder))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var b strings.Builder
	for scanner.Scan() {
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", message.WrapError(message.ErrCodeResource, err, "read query file %s", display)
	}
	return b.String(), nil
}
