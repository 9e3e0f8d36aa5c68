package models

import "strings"

// EncodingKind identifies which historical field a record stores media references in.
type EncodingKind string

const (
	EncodingBlocks        EncodingKind = "BLOCKS"
	EncodingLegacyFileURL EncodingKind = "LEGACY_FILE_URL"
	EncodingNone          EncodingKind = "NONE"
)

// ContentSource is the stored content of an assignment or submission.
type ContentSource struct {
	Blocks  BlockList
	FileURL *string
}

// ContentEncoding is a content source resolved to its storage paths.
type ContentEncoding struct {
	Kind  EncodingKind
	Paths []string
}

// PathExtractor maps a public URL to a storage path; ok is false when unresolvable.
type PathExtractor func(rawURL string) (path string, ok bool)

type encodingStrategy struct {
	kind    EncodingKind
	resolve func(ContentSource, PathExtractor) []string
}

var encodingStrategies = []encodingStrategy{
	{kind: EncodingBlocks, resolve: blockPaths},
	{kind: EncodingLegacyFileURL, resolve: legacyPaths},
}

// ResolveEncoding tries each encoding in turn and returns the first that yields paths.
func ResolveEncoding(src ContentSource, extract PathExtractor) ContentEncoding {
	for _, strategy := range encodingStrategies {
		if paths := strategy.resolve(src, extract); len(paths) > 0 {
			return ContentEncoding{Kind: strategy.kind, Paths: paths}
		}
	}
	return ContentEncoding{Kind: EncodingNone}
}

func blockPaths(src ContentSource, extract PathExtractor) []string {
	var paths []string
	for _, u := range src.Blocks.MediaURLs() {
		if p, ok := extract(u); ok {
			paths = append(paths, p)
		}
	}
	return paths
}

func legacyPaths(src ContentSource, extract PathExtractor) []string {
	if src.FileURL == nil || strings.TrimSpace(*src.FileURL) == "" {
		return nil
	}
	if p, ok := extract(*src.FileURL); ok {
		return []string{p}
	}
	return nil
}

// ReplacedPaths returns paths referenced by previous but absent from current.
func ReplacedPaths(previous, current ContentEncoding) []string {
	keep := make(map[string]struct{}, len(current.Paths))
	for _, p := range current.Paths {
		keep[p] = struct{}{}
	}
	var out []string
	for _, p := range previous.Paths {
		if _, ok := keep[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
