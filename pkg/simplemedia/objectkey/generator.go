package objectkey

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Derivation labels for derived content
const (
	DerivationVariant = "variant"
	DerivationStream  = "stream"
)

// PlaylistName is the file name of the HLS playlist under a stream prefix.
const PlaylistName = "index.m3u8"

// Generator defines the interface for blob key generation strategies
type Generator interface {
	// GenerateKey creates a blob key for an item owned by spaceID
	GenerateKey(spaceID, itemID uuid.UUID, metadata *KeyMetadata) string
}

// KeyMetadata contains information that influences key generation
type KeyMetadata struct {
	FileName    string
	ContentType string

	IsOriginal   bool
	Derivation   string // "variant" or "stream"
	SourceItemID *uuid.UUID
}

// FlatGenerator stores every item under spaces/{space}/{item}/{file}
type FlatGenerator struct{}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{}
}

func (g *FlatGenerator) GenerateKey(spaceID, itemID uuid.UUID, metadata *KeyMetadata) string {
	if metadata != nil && metadata.FileName != "" {
		return fmt.Sprintf("spaces/%s/%s/%s", spaceID, itemID, sanitizeFilename(metadata.FileName))
	}
	return fmt.Sprintf("spaces/%s/%s", spaceID, itemID)
}

// SpaceGenerator provides Git-style sharded storage with original/derived
// separation inside each space.
// Original: spaces/{space}/originals/ab/cd1234ef5678_filename
// Derived:  spaces/{space}/derived/{derivation}/ab/cd1234ef5678_filename
type SpaceGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewSpaceGenerator() *SpaceGenerator {
	return &SpaceGenerator{ShardLength: 2}
}

func (g *SpaceGenerator) GenerateKey(spaceID, itemID uuid.UUID, metadata *KeyMetadata) string {
	id := strings.ReplaceAll(itemID.String(), "-", "")

	shard := g.ShardLength
	if shard <= 0 || shard > len(id) {
		shard = 2
	}
	shardDir := id[:shard]

	filename := id[shard:]
	if metadata != nil && metadata.FileName != "" {
		filename = fmt.Sprintf("%s_%s", filename, sanitizeFilename(path.Base(metadata.FileName)))
	}

	prefix := fmt.Sprintf("spaces/%s/originals/%s", spaceID, shardDir)
	if metadata != nil && !metadata.IsOriginal && metadata.Derivation != "" {
		prefix = fmt.Sprintf("spaces/%s/derived/%s/%s", spaceID, sanitizePathComponent(metadata.Derivation), shardDir)
	}

	return fmt.Sprintf("%s/%s", prefix, filename)
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(spaceID, itemID uuid.UUID, metadata *KeyMetadata) string
}

func NewCustomFuncGenerator(fn func(spaceID, itemID uuid.UUID, metadata *KeyMetadata) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{GenerateFunc: fn}
}

func (g *CustomFuncGenerator) GenerateKey(spaceID, itemID uuid.UUID, metadata *KeyMetadata) string {
	return g.GenerateFunc(spaceID, itemID, metadata)
}

// StreamPrefix derives the destination prefix of an HLS rendition from the
// source key. The same source key always yields the same prefix.
//
//	spaces/s/originals/ab/cd_movie.mp4 -> spaces/s/originals/ab/cd_movie.hls/
func StreamPrefix(sourceKey string) string {
	key := strings.TrimSuffix(sourceKey, "/")
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + ".hls/"
}

// PlaylistKey returns the key of the playlist produced for sourceKey.
func PlaylistKey(sourceKey string) string {
	return StreamPrefix(sourceKey) + PlaylistName
}

// Helper functions for path sanitization
func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(filename)
}

func sanitizePathComponent(component string) string {
	return strings.ToLower(sanitizeFilename(component))
}
