package rag

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrVectorLength 表示候选向量与查询向量维度不一致，
// 通常意味着存储的向量已损坏或由不兼容的模型产生。
var ErrVectorLength = errors.New("向量维度不匹配")

// Candidate 是一个待打分的分块及其向量。
type Candidate struct {
	Chunk  Chunk
	Vector []float32
}

// ScoredChunk 是打分后的分块。
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// TopK 计算查询向量与每个候选向量的余弦相似度，按得分降序
// （同分时按分块 Index 升序）返回前 min(k, len(candidates)) 条。
// 空候选集返回空结果；k <= 0 属于调用方配置错误；任一候选向量
// 维度与查询向量不一致时返回包装了 ErrVectorLength 的错误，
// 而不是截断或补零。零范数向量得分为 0，不产生 NaN。
func TopK(query []float32, candidates []Candidate, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("无效的检索配置: k 必须大于 0, 实际为 %d", k)
	}
	if len(candidates) == 0 {
		return []ScoredChunk{}, nil
	}

	scored := make([]ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(query) {
			return nil, fmt.Errorf("分块 %d: %w (候选维度 %d, 查询维度 %d)",
				c.Chunk.Index, ErrVectorLength, len(c.Vector), len(query))
		}
		scored = append(scored, ScoredChunk{Chunk: c.Chunk, Score: cosine(query, c.Vector)})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Index < scored[j].Chunk.Index
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// cosine 计算余弦相似度 dot(a,b)/(|a|*|b|)，任一向量范数为 0 时返回 0。
func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
