// Package tokenizertest 提供进程内的分词后端，供依赖 tokenizer 的测试使用。
package tokenizertest

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gomlx/go-huggingface/tokenizers/api"
)

const spaceMarker = "▁"

// Backend 是 llama 风格的最长匹配分词：added tokens 整体匹配，空格并入下一个 piece（"▁"），
// 不补前导 "▁"。同一个词在句首和句中会得到不同的 token，和字节级 BPE 词表一致。
type Backend struct {
	vocab   map[string]int
	pieces  map[int]string
	added   []string
	special map[api.SpecialToken]int
	unk     int
}

// New 用 piece->id 构建后端。added 中的 token 整体匹配；special 给出 BOS/EOS/PAD 等的 id。
func New(vocab map[string]int, added []string, special map[api.SpecialToken]int, unk int) *Backend {
	b := &Backend{
		vocab:   vocab,
		pieces:  make(map[int]string, len(vocab)),
		added:   append([]string(nil), added...),
		special: special,
		unk:     unk,
	}
	for p, id := range vocab {
		b.pieces[id] = p
	}
	sort.SliceStable(b.added, func(i, j int) bool { return len(b.added[i]) > len(b.added[j]) })
	return b
}

// Size 返回最大 id + 1。
func (b *Backend) Size() int {
	n := 0
	for id := range b.pieces {
		n = max(n, id+1)
	}
	return n
}

func (b *Backend) Encode(text string) []int {
	var ids []int
	start := 0
	for i := 0; i < len(text); {
		if tok, ok := b.matchAdded(text[i:]); ok {
			ids = b.encodeSegment(ids, text[start:i])
			ids = append(ids, b.vocab[tok])
			i += len(tok)
			start = i
			continue
		}
		i++
	}
	return b.encodeSegment(ids, text[start:])
}

func (b *Backend) matchAdded(s string) (string, bool) {
	for _, tok := range b.added {
		if strings.HasPrefix(s, tok) {
			return tok, true
		}
	}
	return "", false
}

func (b *Backend) encodeSegment(ids []int, seg string) []int {
	seg = strings.ReplaceAll(seg, " ", spaceMarker)
	for len(seg) > 0 {
		n := len(seg)
		for ; n > 0; n-- {
			if id, ok := b.vocab[seg[:n]]; ok {
				ids = append(ids, id)
				break
			}
		}
		if n == 0 {
			ids = append(ids, b.unk)
			_, n = utf8.DecodeRuneInString(seg)
		}
		seg = seg[n:]
	}
	return ids
}

func (b *Backend) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(b.pieces[id])
	}
	return strings.TrimPrefix(strings.ReplaceAll(sb.String(), spaceMarker, " "), " ")
}

func (b *Backend) SpecialTokenID(token api.SpecialToken) (int, error) {
	if id, ok := b.special[token]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("special token %v not defined", token)
}
