// internal/translate/batch.go
package translate

import "unicode/utf8"

// DefaultMaxBatchChars 未指定上限时使用的批次大小
const DefaultMaxBatchChars = 10000

// Batch 将文本按字符数分组，返回每批文本在原切片中的下标。
// 单条超长文本单独成批，顺序保持不变。
func Batch(texts []string, maxChars int) [][]int {
	if len(texts) == 0 {
		return nil
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxBatchChars
	}

	var batches [][]int
	var current []int
	currentChars := 0

	for i, text := range texts {
		size := utf8.RuneCountInString(text)

		if size > maxChars {
			if len(current) > 0 {
				batches = append(batches, current)
				current = nil
				currentChars = 0
			}
			batches = append(batches, []int{i})
			continue
		}

		if currentChars+size > maxChars && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}

		current = append(current, i)
		currentChars += size
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
