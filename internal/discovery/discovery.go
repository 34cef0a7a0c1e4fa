// Package discovery implements C1: walking a project root, applying
// include/exclude globs, hashing file contents, and diffing against known
// FileRecord hashes to decide what needs reparsing.
package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/module-sentinel/sentinel/internal/languages"
	"github.com/module-sentinel/sentinel/internal/logging"
	"github.com/module-sentinel/sentinel/internal/sentinelerr"
	"github.com/module-sentinel/sentinel/internal/types"
	"github.com/module-sentinel/sentinel/pkg/pathutil"
)

// Options configures one discovery walk.
type Options struct {
	ProjectRoot    string
	Languages      []string // empty = all registered languages
	IncludeGlobs   []string // empty = include everything
	ExcludeGlobs   []string
	MaxFileSize    int64 // bytes
	FollowSymlinks bool
}

// Walker performs C1 discovery over a project root.
type Walker struct {
	opts      Options
	log       logging.Logger
	validator *FileValidator
	wantLangs map[string]bool
}

func NewWalker(opts Options, log logging.Logger) *Walker {
	var want map[string]bool
	if len(opts.Languages) > 0 {
		want = make(map[string]bool, len(opts.Languages))
		for _, l := range opts.Languages {
			want[l] = true
		}
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 10 * 1024 * 1024
	}
	opts.ExcludeGlobs = append(append([]string{}, opts.ExcludeGlobs...), buildArtifactPatterns(opts.ProjectRoot)...)
	return &Walker{
		opts:      opts,
		log:       log,
		validator: NewFileValidator(512), // validate headers of files over 512KB
		wantLangs: want,
	}
}

// Discover walks the project root and returns every file that survives the
// include/exclude globs, the size cap, and the binary/symlink-cycle checks.
// Files that match every filter except the size cap are returned separately
// in skipped, so the caller can still record a FileRecord with status=skipped
// for them (spec §8's "file exceeding max size → skipped" boundary case).
// Errors for individual unreadable files are reported via errs but do not
// stop the walk, per spec §4.1's "not fatal" edge case.
func (w *Walker) Discover() (candidates []types.FileCandidate, skipped []types.FileCandidate, errs []*sentinelerr.Error) {
	seenReal := make(map[string]bool) // canonical paths already visited, breaks symlink cycles

	err := filepath.Walk(w.opts.ProjectRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			errs = append(errs, sentinelerr.New(sentinelerr.KindFileIO, "walk", walkErr).WithFile(pathutil.ToRelative(path, w.opts.ProjectRoot)))
			return nil
		}

		rel, relErr := filepath.Rel(w.opts.ProjectRoot, path)
		if relErr != nil {
			return nil
		}

		if info.IsDir() {
			if shouldSkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			if !w.opts.FollowSymlinks {
				return nil
			}
			real, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			if seenReal[real] {
				return nil // cycle, already visited via this canonical path
			}
			seenReal[real] = true
			sinfo, err := os.Stat(real)
			if err != nil || sinfo.IsDir() {
				return nil
			}
			info = sinfo
		}

		if !w.matchesGlobs(rel) {
			return nil
		}

		lang := languages.ForExtension(filepath.Ext(path))
		if lang == "" {
			return nil
		}
		if w.wantLangs != nil && !w.wantLangs[lang] {
			return nil
		}

		if info.Size() > w.opts.MaxFileSize {
			w.log.Debug("skipping oversized file", map[string]any{"path": rel, "size": info.Size()})
			skipped = append(skipped, types.FileCandidate{
				Path:     filepath.ToSlash(rel),
				AbsPath:  path,
				Language: lang,
				Size:     info.Size(),
			})
			return nil
		}

		if err := w.validator.ValidateLargeFile(path); err != nil {
			errs = append(errs, sentinelerr.New(sentinelerr.KindFileIO, "validate", err).WithFile(rel))
			return nil
		}

		hash, size, hashErr := hashFile(path)
		if hashErr != nil {
			errs = append(errs, sentinelerr.New(sentinelerr.KindFileIO, "hash", hashErr).WithFile(rel))
			return nil
		}

		candidates = append(candidates, types.FileCandidate{
			Path:        filepath.ToSlash(rel),
			AbsPath:     path,
			Language:    lang,
			Size:        size,
			ContentHash: hash,
		})
		return nil
	})
	if err != nil {
		errs = append(errs, sentinelerr.New(sentinelerr.KindFileIO, "walk", err))
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })
	return candidates, skipped, errs
}

// shouldSkipDir excludes the directories that are never worth descending
// into regardless of glob configuration.
func shouldSkipDir(rel string) bool {
	base := filepath.Base(rel)
	switch base {
	case ".git", ".hg", ".svn", "node_modules", ".sentinel":
		return true
	}
	return false
}

func (w *Walker) matchesGlobs(rel string) bool {
	relSlash := filepath.ToSlash(rel)

	for _, pattern := range w.opts.ExcludeGlobs {
		if ok, _ := doublestar.Match(pattern, relSlash); ok {
			return false
		}
	}

	if len(w.opts.IncludeGlobs) == 0 {
		return true
	}
	for _, pattern := range w.opts.IncludeGlobs {
		if ok, _ := doublestar.Match(pattern, relSlash); ok {
			return true
		}
	}
	return false
}

func hashFile(path string) (hexHash string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// KnownHash is the minimal view of a FileRecord filter_changed needs.
type KnownHash struct {
	Path string
	Hash string
}

// FilterChanged partitions candidates against the previously recorded
// hashes: files whose hash differs (or that are new) go to ToParse, files
// whose hash matches go to ToSkip, and known paths absent from candidates go
// to ToDelete.
type FilterResult struct {
	ToParse  []types.FileCandidate
	ToSkip   []types.FileCandidate
	ToDelete []string // paths
}

func FilterChanged(candidates []types.FileCandidate, known []KnownHash) FilterResult {
	knownByPath := make(map[string]string, len(known))
	for _, k := range known {
		knownByPath[k.Path] = k.Hash
	}

	seen := make(map[string]bool, len(candidates))
	var result FilterResult
	for _, c := range candidates {
		seen[c.Path] = true
		if h, ok := knownByPath[c.Path]; ok && h == c.ContentHash {
			result.ToSkip = append(result.ToSkip, c)
		} else {
			result.ToParse = append(result.ToParse, c)
		}
	}
	for _, k := range known {
		if !seen[k.Path] {
			result.ToDelete = append(result.ToDelete, k.Path)
		}
	}
	return result
}
