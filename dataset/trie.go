package dataset

import (
	"sort"
	"strings"

	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/prompt"
)

// Trie 是物品标识 token 序列上的前缀树，实现 core.SequenceConstraint。
// 构建完成后只读，可被多个解码请求并发使用。
type Trie struct {
	root   *trieNode
	seqs   [][]int
	marker []int
	eos    int
}

type trieNode struct {
	children map[int]*trieNode
	terminal bool
	allowed  []int
}

// NewTrie 用合法 token 序列、回复标记和 EOS 构建前缀树。
func NewTrie(seqs [][]int, marker []int, eos int) *Trie {
	t := &Trie{root: newTrieNode(), marker: marker, eos: eos}
	for _, seq := range seqs {
		if len(seq) == 0 {
			continue
		}
		node := t.root
		for _, tok := range seq {
			next, ok := node.children[tok]
			if !ok {
				next = newTrieNode()
				node.children[tok] = next
			}
			node = next
		}
		if !node.terminal {
			node.terminal = true
			t.seqs = append(t.seqs, append([]int(nil), seq...))
		}
	}
	t.root.finalize(eos)
	return t
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[int]*trieNode)}
}

// finalize 预先计算每个节点的允许列表（升序，完整标识追加 EOS）。
func (n *trieNode) finalize(eos int) {
	n.allowed = make([]int, 0, len(n.children)+1)
	for tok, child := range n.children {
		n.allowed = append(n.allowed, tok)
		child.finalize(eos)
	}
	sort.Ints(n.allowed)
	if n.terminal || len(n.children) == 0 {
		n.allowed = append(n.allowed, eos)
	}
}

// Allowed 返回下一步允许的 token：
// 在 sentence 中定位最后一个回复标记，用其后的 token 在树上行走；
// 走到完整标识返回 EOS，未知前缀也只允许 EOS。
func (t *Trie) Allowed(_ int, sentence []int) []int {
	start := lastIndex(sentence, t.marker)
	if start < 0 {
		return t.root.allowed
	}
	node := t.root
	for _, tok := range sentence[start+len(t.marker):] {
		next, ok := node.children[tok]
		if !ok {
			return []int{t.eos}
		}
		node = next
	}
	return node.allowed
}

// Sequences 返回全部合法标识的 token 序列。
func (t *Trie) Sequences() [][]int { return t.seqs }

// Marker 返回回复标记的 token 序列。
func (t *Trie) Marker() []int { return t.marker }

// lastIndex 返回 sub 在 s 中最后一次出现的位置，未出现返回 -1。
func lastIndex(s, sub []int) int {
	if len(sub) == 0 || len(sub) > len(s) {
		return -1
	}
outer:
	for i := len(s) - len(sub); i >= 0; i-- {
		for j, v := range sub {
			if s[i+j] != v {
				continue outer
			}
		}
		return i
	}
	return -1
}

// PrefixAllowedTokens 用 tokenizer 编码全部物品标识，构建受限解码约束。
func (d *Dataset) PrefixAllowedTokens(tok core.Tokenizer) *Trie {
	items := d.AllItems()
	seqs := make([][]int, 0, len(items))
	for _, id := range items {
		seqs = append(seqs, tok.EncodePiece(id))
	}
	return NewTrie(seqs, MarkerTokens(tok), tok.EOSID())
}

// MarkerTokens 返回 ResponseMarker 在 prompt 中实际对应的 token。
// 前导空格会并入下一个 piece，单独编码的 marker 与上下文中的 token 可能不同；
// 这里编码空 instruction 的完整框架，取解码后包含 marker 的最短后缀。
func MarkerTokens(tok core.Tokenizer) []int {
	framed := tok.EncodePiece(prompt.Frame(""))
	for i := len(framed) - 1; i >= 0; i-- {
		if strings.Contains(tok.Decode(framed[i:], true), prompt.ResponseMarker) {
			return framed[i:]
		}
	}
	return tok.EncodePiece(prompt.ResponseMarker)
}

var _ core.SequenceConstraint = (*Trie)(nil)
