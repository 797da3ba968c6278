package mls

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
	slugChars       = regexp.MustCompile(`[^a-z0-9]+`)
)

// BaseName turns an upload filename into a safe stem for output files.
func BaseName(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = strings.Trim(unsafeNameChars.ReplaceAllString(stem, "_"), "_")
	if stem == "" || stem == "." {
		return "image"
	}
	return stem
}

// OutputName is the archive entry name for one rendition.
func OutputName(base string, kind Kind) string {
	return fmt.Sprintf("%s_%s_mls.jpg", base, kind)
}

// Slug lowercases a project name and joins its words with underscores.
func Slug(name string) string {
	s := strings.Trim(slugChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if s == "" {
		return "project"
	}
	return s
}

// ArchiveName is the download name of an export bundle.
func ArchiveName(projectName string, imageCount int, at time.Time) string {
	return fmt.Sprintf("%s_mls_export_%d_images_%s.zip", Slug(projectName), imageCount, at.UTC().Format("2006-01-02"))
}

// nameSet hands out unique stems within one archive. Repeats get a
// numeric suffix starting at 2.
type nameSet struct {
	used map[string]bool
}

func newNameSet() *nameSet {
	return &nameSet{used: make(map[string]bool)}
}

func (n *nameSet) unique(base string) string {
	name := base
	for i := 2; n.used[strings.ToLower(name)]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	n.used[strings.ToLower(name)] = true
	return name
}
