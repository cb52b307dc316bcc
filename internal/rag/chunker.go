// Package rag 实现了文档问答的核心算法：文本分块与向量检索。
// 该包内的函数均为纯函数，不依赖任何外部服务。
package rag

import (
	"fmt"
	"unicode"
)

// Chunk 代表原始文本中一个按词切分、可能与相邻块重叠的片段。
// StartOffset/EndOffset 是指向原始文本的字节偏移，
// 且恒有 Text == text[StartOffset:EndOffset]。
type Chunk struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
}

// wordSpan 记录单个词在原始文本中的位置。
type wordSpan struct {
	start int
	end   int
}

// Split 将文本切分为带重叠的词窗口分块。
// chunkSize 为每块的词数，overlap 为相邻块共享的词数，
// 窗口每次前进 chunkSize-overlap 个词；末尾不足一个完整窗口的
// 剩余词构成最后一块。空文本（或纯空白）返回空结果而非错误；
// 非法的 chunkSize/overlap 组合属于调用方配置错误，立即返回错误。
func Split(text string, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("无效的分块配置: chunkSize 必须大于 0, 实际为 %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("无效的分块配置: overlap 必须满足 0 <= overlap < chunkSize, 实际为 %d (chunkSize=%d)", overlap, chunkSize)
	}

	words := splitWords(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := chunkSize - overlap
	chunks := make([]Chunk, 0, (len(words)+step-1)/step)
	for start := 0; start < len(words); start += step {
		end := start + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			Text:        text[words[start].start:words[end-1].end],
			StartOffset: words[start].start,
			EndOffset:   words[end-1].end,
		})
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// splitWords 按空白切词并保留每个词的字节偏移。
func splitWords(text string) []wordSpan {
	var words []wordSpan
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, wordSpan{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, wordSpan{start: start, end: len(text)})
	}
	return words
}
