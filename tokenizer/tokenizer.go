// Package tokenizer 把 go-huggingface 的分词器适配为 core.Tokenizer。
//
// 分词本身（SentencePiece / BPE、added tokens）由 go-huggingface 完成；
// 这里只补上评测需要而上游接口没有的部分：BOS 控制、pad/eos id、跳过特殊 token 的解码和词表长度。
package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/go-huggingface/tokenizers"
	"github.com/gomlx/go-huggingface/tokenizers/api"

	"github.com/rushteam/receval/core"
)

// FileName 是 repo 中的 tokenizer 文件名，词表长度与特殊 token 从这里读取。
const FileName = "tokenizer.json"

// Backend 是适配器依赖的分词能力，go-huggingface 的 api.Tokenizer 满足它。
type Backend interface {
	Encode(text string) []int
	Decode(ids []int) string
	SpecialTokenID(token api.SpecialToken) (int, error)
}

// Tokenizer 实现 core.Tokenizer。
type Tokenizer struct {
	backend Backend
	size    int
	special map[int]bool

	bosID, eosID, padID int
	addBOS              bool
}

// Option 配置项
type Option func(*Tokenizer)

// WithAddBOS 编码时是否在开头添加 BOS（默认 true）。
func WithAddBOS(add bool) Option {
	return func(t *Tokenizer) { t.addBOS = add }
}

// WithPadID 指定 pad id；repo 未定义 pad token 时默认为 0。
func WithPadID(id int) Option {
	return func(t *Tokenizer) { t.padID = id }
}

// WithSize 指定词表长度（含 added tokens）。
func WithSize(n int) Option {
	return func(t *Tokenizer) { t.size = n }
}

// WithSpecial 把额外的 id 标记为特殊 token，解码时可跳过。
func WithSpecial(ids ...int) Option {
	return func(t *Tokenizer) {
		for _, id := range ids {
			t.special[id] = true
		}
	}
}

// New 包装一个已打开的分词器。EOS 必须存在：受限解码靠它结束生成。
func New(b Backend, opts ...Option) (*Tokenizer, error) {
	if b == nil {
		return nil, core.NewConfigError(core.ModuleConfig, "tokenizer: backend is nil")
	}
	eos, err := b.SpecialTokenID(api.TokEndOfSentence)
	if err != nil {
		return nil, core.NewConfigError(core.ModuleConfig, fmt.Sprintf("tokenizer: no eos token: %v", err))
	}
	t := &Tokenizer{
		backend: b,
		special: map[int]bool{eos: true},
		bosID:   -1,
		eosID:   eos,
		addBOS:  true,
	}
	if id, err := b.SpecialTokenID(api.TokBeginningOfSentence); err == nil {
		t.bosID = id
		t.special[id] = true
	}
	if id, err := b.SpecialTokenID(api.TokPad); err == nil {
		t.padID = id
		t.special[id] = true
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.size <= 0 {
		return nil, core.NewConfigError(core.ModuleConfig, "tokenizer: vocabulary size is unknown")
	}
	return t, nil
}

// Load 打开 HuggingFace repo 的分词器；已下载的文件直接从 cacheDir 读取（为空时用默认缓存目录）。
// 环境变量 HF_TOKEN 非空时用于访问私有 repo。
func Load(repoID, cacheDir string, opts ...Option) (*Tokenizer, error) {
	if repoID == "" {
		return nil, core.NewConfigError(core.ModuleConfig, "tokenizer: repo id is required")
	}
	repo := hub.New(repoID)
	if cacheDir != "" {
		repo = repo.WithCacheDir(cacheDir)
	}
	if token := os.Getenv("HF_TOKEN"); token != "" {
		repo = repo.WithAuth(token)
	}

	b, err := tokenizers.New(repo)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: open %s: %w", repoID, err)
	}
	path, err := repo.DownloadFile(FileName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: download %s: %w", FileName, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: read %s: %w", path, err)
	}
	size, special, err := vocabInfo(data)
	if err != nil {
		return nil, err
	}
	return New(b, append([]Option{WithSize(size), WithSpecial(special...)}, opts...)...)
}

// vocabInfo 从 tokenizer.json 读出词表长度（最大 id + 1）与标记为 special 的 added tokens。
// model.vocab 在 BPE/WordPiece 中是 piece->id 的对象，在 Unigram 中是 [piece, score] 列表。
func vocabInfo(data []byte) (size int, special []int, err error) {
	var f struct {
		AddedTokens []struct {
			ID      int  `json:"id"`
			Special bool `json:"special"`
		} `json:"added_tokens"`
		Model struct {
			Vocab json.RawMessage `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, nil, fmt.Errorf("tokenizer: parse %s: %w", FileName, err)
	}

	if len(f.Model.Vocab) > 0 {
		var byPiece map[string]int
		if err := json.Unmarshal(f.Model.Vocab, &byPiece); err == nil {
			for _, id := range byPiece {
				size = max(size, id+1)
			}
		} else {
			var list []json.RawMessage
			if err := json.Unmarshal(f.Model.Vocab, &list); err != nil {
				return 0, nil, fmt.Errorf("tokenizer: parse model.vocab: %w", err)
			}
			size = len(list)
		}
	}
	for _, at := range f.AddedTokens {
		size = max(size, at.ID+1)
		if at.Special {
			special = append(special, at.ID)
		}
	}
	if size == 0 {
		return 0, nil, fmt.Errorf("tokenizer: %s has an empty vocabulary", FileName)
	}
	return size, special, nil
}

// Len 词表长度（含 added tokens）。
func (t *Tokenizer) Len() int { return t.size }

func (t *Tokenizer) PadID() int { return t.padID }
func (t *Tokenizer) EOSID() int { return t.eosID }

// BOSID 未定义 BOS 时返回 -1。
func (t *Tokenizer) BOSID() int { return t.bosID }

// Encode 文本 -> token id，按配置在开头加 BOS。
func (t *Tokenizer) Encode(text string) []int {
	ids := t.backend.Encode(text)
	if !t.addBOS || t.bosID < 0 {
		return ids
	}
	return append([]int{t.bosID}, ids...)
}

// EncodePiece 编码片段，不加 BOS。
func (t *Tokenizer) EncodePiece(text string) []int {
	return t.backend.Encode(text)
}

// Decode token id -> 文本。
func (t *Tokenizer) Decode(ids []int, skipSpecial bool) string {
	if !skipSpecial {
		return t.backend.Decode(ids)
	}
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if !t.special[id] {
			kept = append(kept, id)
		}
	}
	return t.backend.Decode(kept)
}

func (t *Tokenizer) BatchDecode(seqs [][]int, skipSpecial bool) []string {
	out := make([]string, len(seqs))
	for i, seq := range seqs {
		out[i] = t.Decode(seq, skipSpecial)
	}
	return out
}

var _ core.Tokenizer = (*Tokenizer)(nil)
