// Package assets fetches config and stamp bundles from local paths, http,
// git or s3 sources into a working directory.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"
)

// ConfigNames are searched, in order, at the root of a fetched bundle.
var ConfigNames = []string{"terrain.yaml", "terrain.yml", "terrain.toml"}

// Bundle is a fetched source on local disk.
type Bundle struct {
	Dir    string // stamp images resolve against this
	Config string // "" when the bundle has no config file
}

// Fetch downloads src into dstDir. A src ending in .yaml, .yml or .toml
// is fetched as a single config file; anything else is treated as a
// directory or archive. pwd resolves relative sources; "" means the
// process working directory.
func Fetch(ctx context.Context, src, dstDir, pwd string) (Bundle, error) {
	if strings.TrimSpace(src) == "" {
		return Bundle{}, errors.New("assets: empty source")
	}
	if pwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Bundle{}, err
		}
		pwd = wd
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return Bundle{}, err
	}

	client := &getter.Client{
		Ctx: ctx,
		Src: src,
		Pwd: pwd,
	}
	if ext := configExt(src); ext != "" {
		client.Mode = getter.ClientModeFile
		client.Dst = filepath.Join(dstDir, "terrain"+ext)
		if err := client.Get(); err != nil {
			return Bundle{}, fmt.Errorf("assets: fetch %s: %w", src, err)
		}
		return Bundle{Dir: dstDir, Config: client.Dst}, nil
	}

	client.Mode = getter.ClientModeDir
	client.Dst = filepath.Join(dstDir, "bundle")
	if err := client.Get(); err != nil {
		return Bundle{}, fmt.Errorf("assets: fetch %s: %w", src, err)
	}
	b := Bundle{Dir: client.Dst}
	cfg, err := FindConfig(client.Dst)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Bundle{}, err
	}
	b.Config = cfg
	return b, nil
}

// FindConfig returns the first of ConfigNames present in dir.
func FindConfig(dir string) (string, error) {
	for _, name := range ConfigNames {
		p := filepath.Join(dir, name)
		st, err := os.Stat(p)
		if err == nil && st.Mode().IsRegular() {
			return p, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("assets: no %s in %s: %w", strings.Join(ConfigNames, "/"), dir, os.ErrNotExist)
}

// configExt strips getter forcing ("git::"), subdirectories ("//sub")
// and query strings before looking at the extension.
func configExt(src string) string {
	s := src
	if i := strings.Index(s, "::"); i >= 0 {
		s = s[i+2:]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.LastIndex(s, "//"); i >= 0 {
		s = s[i+2:]
	}
	switch ext := strings.ToLower(path.Ext(filepath.ToSlash(s))); ext {
	case ".yaml", ".yml", ".toml":
		return ext
	}
	return ""
}
