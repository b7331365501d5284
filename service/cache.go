package service

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync/atomic"

	"github.com/rushteam/receval/core"
)

// CachedGenerator 在任意 Generator 之上按样本缓存生成结果。
//
// key 由模型标识、解码参数、受限解码规则的指纹以及样本的有效 token（mask 为 1 的部分）计算，
// 与批次组成和左侧补齐无关；未命中的样本合并成一个子批次生成后按原顺序合并。
// 无法取指纹的 Constraint 不走缓存。
type CachedGenerator struct {
	gen   core.Generator
	store core.Store
	tag   string
	ttl   int

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedGenerator 创建带缓存的 Generator。tag 区分不同的 checkpoint / 数据集，ttl 单位为秒。
func NewCachedGenerator(gen core.Generator, store core.Store, tag string, ttl int) *CachedGenerator {
	return &CachedGenerator{gen: gen, store: store, tag: tag, ttl: ttl}
}

type cacheEntry struct {
	Sequences [][]int   `json:"sequences"`
	Scores    []float64 `json:"scores"`
}

func (c *CachedGenerator) Load(ctx context.Context, opts core.LoadOptions) (*core.ModelInfo, error) {
	return c.gen.Load(ctx, opts)
}

func (c *CachedGenerator) Health(ctx context.Context) error { return c.gen.Health(ctx) }

// Close 关闭底层 Generator 与 Store。
func (c *CachedGenerator) Close() error {
	err := c.gen.Close()
	if serr := c.store.Close(); err == nil {
		err = serr
	}
	return err
}

// Stats 返回命中与未命中的样本数。
func (c *CachedGenerator) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key 计算一个样本的缓存 key。
func (c *CachedGenerator) Key(req *core.GenerateRequest, row int) string {
	digest, _ := constraintDigest(req.Constraint)
	return c.key(req, row, digest)
}

func (c *CachedGenerator) key(req *core.GenerateRequest, row int, digest uint64) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(c.tag))
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(req.NumBeams))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(req.MaxNewTokens))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(numReturn(req)))
	buf = binary.LittleEndian.AppendUint64(buf, digest)
	for j, id := range req.InputIDs[row] {
		if row < len(req.AttentionMask) && j < len(req.AttentionMask[row]) && req.AttentionMask[row][j] == 0 {
			continue
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	}
	_, _ = h.Write(buf)
	return fmt.Sprintf("receval:gen:%016x", h.Sum64())
}

// constraintDigest 对受限解码规则取指纹：nil 为 0，SequenceConstraint 按 marker 与全部序列计算；
// 其他 Constraint 无法比较，ok 为 false。
func constraintDigest(con core.Constraint) (digest uint64, ok bool) {
	if con == nil {
		return 0, true
	}
	sc, ok := con.(core.SequenceConstraint)
	if !ok {
		return 0, false
	}
	h := fnv.New64a()
	buf := appendSeq(nil, sc.Marker())
	for _, seq := range sc.Sequences() {
		buf = appendSeq(buf, seq)
	}
	_, _ = h.Write(buf)
	return h.Sum64(), true
}

// appendSeq 写入长度前缀，保证 {1,2},{3} 与 {1},{2,3} 不同。
func appendSeq(buf []byte, ids []int) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ids)))
	for _, id := range ids {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	}
	return buf
}

func numReturn(req *core.GenerateRequest) int {
	return max(req.NumReturnSequences, 1)
}

func (c *CachedGenerator) Generate(ctx context.Context, req *core.GenerateRequest) (*core.GenerateResponse, error) {
	n := len(req.InputIDs)
	if n == 0 || len(req.AttentionMask) != n {
		return c.gen.Generate(ctx, req)
	}
	digest, ok := constraintDigest(req.Constraint)
	if !ok {
		return c.gen.Generate(ctx, req)
	}
	k := numReturn(req)

	keys := make([]string, n)
	for i := range keys {
		keys[i] = c.key(req, i, digest)
	}
	cached, err := c.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("service: cache %s get: %w", c.store.Name(), err)
	}

	entries := make([]*cacheEntry, n)
	var miss []int
	for i, key := range keys {
		if raw, ok := cached[key]; ok {
			var e cacheEntry
			if json.Unmarshal(raw, &e) == nil && len(e.Sequences) == k && len(e.Scores) == k {
				entries[i] = &e
				continue
			}
		}
		miss = append(miss, i)
	}
	c.hits.Add(int64(n - len(miss)))
	c.misses.Add(int64(len(miss)))

	if len(miss) > 0 {
		if err := c.fill(ctx, req, keys, miss, entries); err != nil {
			return nil, err
		}
	}

	out := &core.GenerateResponse{
		Sequences: make([][]int, 0, n*k),
		Scores:    make([]float64, 0, n*k),
	}
	for _, e := range entries {
		out.Sequences = append(out.Sequences, e.Sequences...)
		out.Scores = append(out.Scores, e.Scores...)
	}
	return out, nil
}

// fill 生成未命中的样本并写回缓存。
func (c *CachedGenerator) fill(ctx context.Context, req *core.GenerateRequest, keys []string, miss []int, entries []*cacheEntry) error {
	k := numReturn(req)
	sub := *req
	sub.InputIDs = make([][]int, len(miss))
	sub.AttentionMask = make([][]int, len(miss))
	for j, i := range miss {
		sub.InputIDs[j] = req.InputIDs[i]
		sub.AttentionMask[j] = req.AttentionMask[i]
	}
	trimPadding(&sub)

	resp, err := c.gen.Generate(ctx, &sub)
	if err != nil {
		return err
	}
	if len(resp.Sequences) != len(miss)*k || len(resp.Scores) != len(miss)*k {
		return core.NewDomainError(core.ModuleService, core.ErrorCodeInternalError,
			fmt.Sprintf("service: expected %d sequences, got %d", len(miss)*k, len(resp.Sequences)))
	}

	kvs := make(map[string][]byte, len(miss))
	for j, i := range miss {
		e := &cacheEntry{
			Sequences: resp.Sequences[j*k : (j+1)*k],
			Scores:    resp.Scores[j*k : (j+1)*k],
		}
		entries[i] = e
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("service: marshal cache entry: %w", err)
		}
		kvs[keys[i]] = data
	}
	if err := c.store.BatchSet(ctx, kvs, c.ttl); err != nil {
		return fmt.Errorf("service: cache %s set: %w", c.store.Name(), err)
	}
	return nil
}

// trimPadding 去掉子批次中所有行都是补齐位的前导列。
func trimPadding(req *core.GenerateRequest) {
	width := -1
	for _, row := range req.AttentionMask {
		lead := 0
		for lead < len(row) && row[lead] == 0 {
			lead++
		}
		if width < 0 || lead < width {
			width = lead
		}
	}
	if width <= 0 {
		return
	}
	for i := range req.InputIDs {
		if len(req.InputIDs[i]) >= width && len(req.AttentionMask[i]) >= width {
			req.InputIDs[i] = req.InputIDs[i][width:]
			req.AttentionMask[i] = req.AttentionMask[i][width:]
		}
	}
}

var _ core.Generator = (*CachedGenerator)(nil)
