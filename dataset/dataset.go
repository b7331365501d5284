// Package dataset 加载留一法测试集，并把样本渲染、分词成模型输入批次。
package dataset

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/prompt"
)

// 模板字段名
const (
	FieldInters               = "inters"
	FieldExplicitPreference   = "explicit_preference"
	FieldUserRelatedIntention = "user_related_intention"
	FieldItemRelatedIntention = "item_related_intention"
)

// Options 数据集参数。
type Options struct {
	DataPath  string
	Dataset   string
	IndexFile string // 如 ".index.json"，拼接在数据集名之后

	Task string

	MaxHisLen int    // 历史截断长度，0 表示不截断
	HisSep    string // 历史分隔符
	AddPrefix bool   // 历史条目编号 "1. "

	SampleNum int // >0 时按 Seed 随机抽样
	Seed      int64
}

// Dataset 是一份只读的测试集。
type Dataset struct {
	opts     Options
	task     string
	indices  map[string][]string
	items    map[string]ItemInfo
	examples []*core.Example
}

// Load 按任务加载测试集。
func Load(opts Options) (*Dataset, error) {
	if opts.Dataset == "" {
		return nil, core.NewConfigError(core.ModuleDataset, "dataset: name is required")
	}
	if opts.HisSep == "" {
		opts.HisSep = ", "
	}
	indices, err := loadIndices(opts.file(opts.IndexFile))
	if err != nil {
		return nil, err
	}
	d := &Dataset{
		opts:    opts,
		task:    strings.ToLower(opts.Task),
		indices: indices,
	}

	switch d.task {
	case prompt.TaskSeqRec:
		err = d.buildSeqRec(false)
	case prompt.TaskFusionSeqRec:
		if d.items, err = loadItems(opts.file(ItemSuffix)); err == nil {
			err = d.buildSeqRec(true)
		}
	case prompt.TaskItemSearch:
		err = d.buildItemSearch()
	default:
		return nil, core.NewConfigError(core.ModuleDataset,
			fmt.Sprintf("dataset: unsupported task %q", opts.Task))
	}
	if err != nil {
		return nil, err
	}
	if len(d.examples) == 0 {
		return nil, core.NewDomainError(core.ModuleDataset, core.ErrorCodeInvalidInput,
			fmt.Sprintf("dataset: no test examples for task %q in %s", opts.Task, opts.Dataset))
	}
	d.sample()
	return d, nil
}

// Len 测试样本数。
func (d *Dataset) Len() int { return len(d.examples) }

// Task 返回小写任务名。
func (d *Dataset) Task() string { return d.task }

// Examples 返回全部测试样本（只读）。
func (d *Dataset) Examples() []*core.Example { return d.examples }

// Identifier 返回物品的标识串（索引 token 拼接）。
func (d *Dataset) Identifier(item string) (string, bool) {
	toks, ok := d.indices[item]
	if !ok {
		return "", false
	}
	return strings.Join(toks, ""), true
}

// AllItems 返回全部合法物品标识（排序去重）。
func (d *Dataset) AllItems() []string {
	seen := make(map[string]struct{}, len(d.indices))
	out := make([]string, 0, len(d.indices))
	for _, toks := range d.indices {
		id := strings.Join(toks, "")
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (d *Dataset) identifier(uid, item string) (string, error) {
	id, ok := d.Identifier(item)
	if !ok {
		return "", core.NewDomainError(core.ModuleDataset, core.ErrorCodeNotFound,
			fmt.Sprintf("dataset: user %s: item %s has no index", uid, item))
	}
	return id, nil
}

func (d *Dataset) buildSeqRec(fusion bool) error {
	inters, err := loadInters(d.opts.file(InterSuffix))
	if err != nil {
		return err
	}
	users := make([]string, 0, len(inters))
	for uid := range inters {
		users = append(users, uid)
	}
	sortIDs(users)

	for _, uid := range users {
		seq := inters[uid]
		if len(seq) == 0 {
			continue
		}
		target, err := d.identifier(uid, seq[len(seq)-1])
		if err != nil {
			return err
		}
		history := seq[:len(seq)-1]
		if d.opts.MaxHisLen > 0 && len(history) > d.opts.MaxHisLen {
			history = history[len(history)-d.opts.MaxHisLen:]
		}
		entries := make([]string, len(history))
		for i, item := range history {
			var text string
			if fusion {
				text = d.title(item)
			} else if text, err = d.identifier(uid, item); err != nil {
				return err
			}
			entries[i] = text
		}
		d.examples = append(d.examples, &core.Example{
			Index:  len(d.examples),
			UserID: uid,
			Fields: map[string]string{FieldInters: d.joinHistory(entries)},
			Target: target,
		})
	}
	return nil
}

// title 返回带引号的物品标题，缺失时退回物品标识。
func (d *Dataset) title(item string) string {
	if info, ok := d.items[item]; ok && info.Title != "" {
		return strconv.Quote(strings.TrimSpace(info.Title))
	}
	id, _ := d.Identifier(item)
	return id
}

func (d *Dataset) joinHistory(entries []string) string {
	if d.opts.AddPrefix {
		for i := range entries {
			entries[i] = strconv.Itoa(i+1) + ". " + entries[i]
		}
	}
	return strings.Join(entries, d.opts.HisSep)
}

func (d *Dataset) buildItemSearch() error {
	users, err := loadUsers(d.opts.file(UserSuffix))
	if err != nil {
		return err
	}
	for _, q := range users.VagueIntention.Test {
		target, err := d.identifier(q.User, string(q.Item))
		if err != nil {
			return err
		}
		prefs := users.ExplicitPreference[q.User]
		d.examples = append(d.examples, &core.Example{
			Index:  len(d.examples),
			UserID: q.User,
			Fields: map[string]string{
				FieldExplicitPreference:   strings.Join(prefs, " "),
				FieldUserRelatedIntention: q.UserRelatedIntention,
				FieldItemRelatedIntention: q.ItemRelatedIntention,
			},
			Target: target,
		})
	}
	return nil
}

// sample 按种子抽取 SampleNum 条样本，保持原有顺序并重新编号。
func (d *Dataset) sample() {
	n := d.opts.SampleNum
	if n <= 0 || n >= len(d.examples) {
		return
	}
	seed := uint64(d.opts.Seed)
	rng := rand.New(rand.NewPCG(seed, seed))
	picked := rng.Perm(len(d.examples))[:n]
	sort.Ints(picked)
	out := make([]*core.Example, n)
	for i, idx := range picked {
		ex := d.examples[idx]
		ex.Index = i
		out[i] = ex
	}
	d.examples = out
}
