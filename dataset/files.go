package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rushteam/receval/core"
)

// 数据文件后缀，均位于 <data_path>/<dataset>/ 目录下
const (
	InterSuffix = ".inter.json"
	ItemSuffix  = ".item.json"
	UserSuffix  = ".user.json"
)

// itemRef 兼容数字与字符串两种物品 id 写法。
type itemRef string

func (r *itemRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = itemRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("item id: %w", err)
	}
	*r = itemRef(n.String())
	return nil
}

// ItemInfo 是 .item.json 中的物品元信息。
type ItemInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// searchQuery 是物品搜索任务的一条测试意图。
type searchQuery struct {
	User                 string  `json:"user"`
	Item                 itemRef `json:"item"`
	UserRelatedIntention string  `json:"user_related_intention"`
	ItemRelatedIntention string  `json:"item_related_intention"`
}

type userFile struct {
	ExplicitPreference map[string][]string `json:"user_explicit_preference"`
	VagueIntention     struct {
		Test []searchQuery `json:"test"`
	} `json:"user_vague_intention"`
}

func (o Options) file(suffix string) string {
	return filepath.Join(o.DataPath, o.Dataset, o.Dataset+suffix)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.NewDomainError(core.ModuleDataset, core.ErrorCodeNotFound,
				fmt.Sprintf("dataset: file %s not found", path))
		}
		return fmt.Errorf("dataset: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("dataset: parse %s: %w", path, err)
	}
	return nil
}

func loadInters(path string) (map[string][]string, error) {
	var raw map[string][]itemRef
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(raw))
	for uid, refs := range raw {
		items := make([]string, len(refs))
		for i, r := range refs {
			items[i] = string(r)
		}
		out[uid] = items
	}
	return out, nil
}

func loadIndices(path string) (map[string][]string, error) {
	var raw map[string][]string
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, core.NewDomainError(core.ModuleDataset, core.ErrorCodeInvalidInput,
			fmt.Sprintf("dataset: index file %s is empty", path))
	}
	return raw, nil
}

func loadItems(path string) (map[string]ItemInfo, error) {
	var raw map[string]ItemInfo
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func loadUsers(path string) (*userFile, error) {
	var raw userFile
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// sortIDs 按数值排序（都是整数时），否则按字典序。
func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return ids[i] < ids[j]
	})
}
