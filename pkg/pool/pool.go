// Package pool provides object pooling to reduce GC pressure during batch extraction.
package pool

import (
	"sync"

	"github.com/kittclouds/skillscan/pkg/textnorm"
)

// TokPool pools token buffers used while tokenizing a document.
var TokPool = sync.Pool{
	New: func() interface{} {
		s := make([]textnorm.Tok, 0, 256)
		return &s
	},
}

// StringSlicePool pools []string window buffers.
var StringSlicePool = sync.Pool{
	New: func() interface{} {
		s := make([]string, 0, 16)
		return &s
	},
}

// GetToks gets an empty token buffer from the pool.
func GetToks() *[]textnorm.Tok {
	s := TokPool.Get().(*[]textnorm.Tok)
	*s = (*s)[:0]
	return s
}

// PutToks returns a token buffer to the pool.
func PutToks(s *[]textnorm.Tok) {
	if s == nil || cap(*s) > 1<<16 {
		return
	}
	TokPool.Put(s)
}

// GetStrings gets an empty string buffer from the pool.
func GetStrings() *[]string {
	s := StringSlicePool.Get().(*[]string)
	*s = (*s)[:0]
	return s
}

// PutStrings returns a string buffer to the pool.
func PutStrings(s *[]string) {
	if s == nil {
		return
	}
	StringSlicePool.Put(s)
}
