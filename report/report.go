// Package report 聚合各 prompt 的指标并写出评测结果文件。
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rushteam/receval/metric"
)

// Results 是按指标顺序输出的 name -> value 映射。
type Results struct {
	Names  []string
	Values map[string]float64
}

// NewResults 按 metrics 顺序取 values 中的值，缺失的指标记为 0。
func NewResults(metrics []metric.Metric, values map[string]float64) Results {
	r := Results{Names: metric.Names(metrics), Values: make(map[string]float64, len(metrics))}
	for _, name := range r.Names {
		r.Values[name] = values[name]
	}
	return r
}

// MarshalJSON 保持指标的配置顺序。
func (r Results) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.Names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.Values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 读取时不保证顺序，Names 按 key 出现顺序重建。
func (r *Results) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	r.Names = nil
	r.Values = make(map[string]float64)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("report: unexpected key %v", tok)
		}
		var v float64
		if err := dec.Decode(&v); err != nil {
			return err
		}
		r.Names = append(r.Names, name)
		r.Values[name] = v
	}
	_, err := dec.Token()
	return err
}

// Summary 是结果文件的内容。
type Summary struct {
	TestPromptIDs    string    `json:"test_prompt_ids"`
	MeanResults      Results   `json:"mean_results"`
	MinResults       Results   `json:"min_results"`
	MaxResults       Results   `json:"max_results"`
	AllPromptResults []Results `json:"all_prompt_results"`
}

// Aggregate 计算各指标在所有 prompt 上的均值、最小值与最大值。
// testPromptIDs 原样写入（如 "all" 或 "0,1,2"）。
func Aggregate(testPromptIDs string, metrics []metric.Metric, perPrompt []map[string]float64) (*Summary, error) {
	if len(perPrompt) == 0 {
		return nil, fmt.Errorf("report: no prompt results to aggregate")
	}
	mean := make(map[string]float64, len(metrics))
	lo := make(map[string]float64, len(metrics))
	hi := make(map[string]float64, len(metrics))
	for _, name := range metric.Names(metrics) {
		for i, res := range perPrompt {
			v := res[name]
			mean[name] += v
			if i == 0 || v < lo[name] {
				lo[name] = v
			}
			if i == 0 || v > hi[name] {
				hi[name] = v
			}
		}
		mean[name] /= float64(len(perPrompt))
	}

	s := &Summary{
		TestPromptIDs: testPromptIDs,
		MeanResults:   NewResults(metrics, mean),
		MinResults:    NewResults(metrics, lo),
		MaxResults:    NewResults(metrics, hi),
	}
	for _, res := range perPrompt {
		s.AllPromptResults = append(s.AllPromptResults, NewResults(metrics, res))
	}
	return s, nil
}

// Write 把 Summary 以 4 空格缩进写入 path：先写临时文件再 rename，失败时不留下半截文件。
func Write(path string, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("report: marshal summary: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("report: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("report: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("report: rename to %s: %w", path, err)
	}
	return nil
}

// Read 读取结果文件。
func Read(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("report: read %s: %w", path, err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("report: parse %s: %w", path, err)
	}
	return &s, nil
}
