package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitExample(t *testing.T) {
	// 5 个词，窗口 3，重叠 1：两块，共享 "gamma"
	chunks, err := Split("alpha beta gamma delta epsilon", 3, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "alpha beta gamma", chunks[0].Text)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, "gamma delta epsilon", chunks[1].Text)
}

func TestSplitSingleChunkWhenShort(t *testing.T) {
	text := "one two three"
	chunks, err := Split(text, 512, 50)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(text), chunks[0].EndOffset)
}

func TestSplitEmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t  \n"} {
		chunks, err := Split(text, 10, 2)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestSplitInvalidConfig(t *testing.T) {
	_, err := Split("a b c", 0, 0)
	assert.Error(t, err)

	_, err = Split("a b c", -1, 0)
	assert.Error(t, err)

	_, err = Split("a b c", 3, -1)
	assert.Error(t, err)

	// overlap == chunkSize 会导致窗口无法前进
	_, err = Split("a b c", 3, 3)
	assert.Error(t, err)

	_, err = Split("a b c", 3, 5)
	assert.Error(t, err)
}

func TestSplitNoOverlapPartitionsWords(t *testing.T) {
	words := make([]string, 23)
	for i := range words {
		words[i] = string(rune('a' + i%26))
	}
	text := strings.Join(words, " ")

	chunks, err := Split(text, 5, 0)
	require.NoError(t, err)

	// overlap=0 时各块词数之和等于总词数，且既不重复也不遗漏
	var got []string
	for _, c := range chunks {
		got = append(got, strings.Fields(c.Text)...)
	}
	assert.Equal(t, words, got)
}

func TestSplitAdjacentChunksShareOverlapWords(t *testing.T) {
	words := make([]string, 40)
	for i := range words {
		words[i] = strings.Repeat(string(rune('a'+i%26)), 1+i%3)
	}
	text := strings.Join(words, " ")

	const chunkSize, overlap = 7, 3
	chunks, err := Split(text, chunkSize, overlap)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Text)
		cur := strings.Fields(chunks[i].Text)
		shared := overlap
		if len(cur) < overlap {
			// 末尾剩余块可能不足 overlap 个词
			shared = len(cur)
		}
		assert.Equal(t, prev[len(prev)-shared:], cur[:shared], "chunk %d", i)
	}
}

func TestSplitIndicesAndOffsets(t *testing.T) {
	text := "  The quick\tbrown fox \n jumps over the lazy dog  "
	chunks, err := Split(text, 3, 1)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	prevStart := -1
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		require.Less(t, c.StartOffset, c.EndOffset)
		require.LessOrEqual(t, c.EndOffset, len(text))
		// 偏移与文本内容必须互相还原
		assert.Equal(t, text[c.StartOffset:c.EndOffset], c.Text)
		// 偏移随序号单调不减
		assert.GreaterOrEqual(t, c.StartOffset, prevStart)
		prevStart = c.StartOffset
	}
}

func TestSplitRemainderChunk(t *testing.T) {
	// 7 个词，窗口 3，重叠 0：最后一块只有 1 个词，仍然要输出
	chunks, err := Split("a b c d e f g", 3, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "g", chunks[2].Text)
}

func TestSplitOverlapLargerThanRemainder(t *testing.T) {
	// 词数少于 overlap 的极端输入仍然产生单块
	chunks, err := Split("solo", 512, 50)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "solo", chunks[0].Text)
}
