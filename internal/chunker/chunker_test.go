package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit_ShortTextYieldsSingleChunk(t *testing.T) {
	chunks, err := Split("hello world", 300, 50)
	require.NoError(t, err)
	require.Equal(t, []string{"hello world"}, chunks)
}

func TestSplit_EmptyTextYieldsNoChunks(t *testing.T) {
	chunks, err := Split("   \n\t  ", 300, 50)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestSplit_WindowsOverlap(t *testing.T) {
	words := make([]string, 10)
	for i := range words {
		words[i] = string(rune('a' + i))
	}
	chunks, err := Split(strings.Join(words, " "), 4, 2)
	require.NoError(t, err)
	// step = 2, so windows start at 0, 2, 4, 6, 8
	require.Len(t, chunks, 5)
	require.Equal(t, "a b c d", chunks[0])
	require.Equal(t, "c d e f", chunks[1])
	require.Equal(t, "i j", chunks[4])

	// every adjacent pair shares the overlap words
	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	require.Equal(t, first[len(first)-2:], second[:2])
}

func TestSplit_CollapsesWhitespace(t *testing.T) {
	chunks, err := Split("one\n\ntwo\t three  \n four", 10, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"one two three four"}, chunks)
}

func TestSplit_RejectsBadWindow(t *testing.T) {
	_, err := Split("some text", 0, 0)
	require.Error(t, err)

	_, err = Split("some text", 10, 10)
	require.Error(t, err)

	_, err = Split("some text", 10, 15)
	require.Error(t, err)

	_, err = Split("some text", 10, -1)
	require.Error(t, err)
}
