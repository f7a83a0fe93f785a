package domain

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Namespace for deterministic chunk ids. Name-based UUIDs need no
// entropy source, so identical trees get identical ids on every run.
var chunkNamespace = uuid.MustParse("7b1d3f60-52a4-4c8e-9a11-640f8c2f11aa")

var jobSeq uint64

// ChunkID derives the stable id for a chunk from its level, owning
// chapter, and position among siblings.
func ChunkID(level Level, chapterID string, localIndex int) string {
	name := fmt.Sprintf("%s:%s:%d", level, chapterID, localIndex)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// BookRootID is the id of the single book root per index.
func BookRootID() string {
	return ChunkID(LevelBook, "", 0)
}

// NewJobID returns a unique id for an in-flight job. When the random
// source is unavailable it falls back to a sequence-derived name-based
// id instead of failing.
func NewJobID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		n := atomic.AddUint64(&jobSeq, 1)
		return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("job:%d", n))).String()
	}
	return id.String()
}
