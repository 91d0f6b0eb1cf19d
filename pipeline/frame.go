package pipeline

import (
	"fmt"
	"math"
	"strconv"
)

// Column 数据列：数值列使用Values（NaN表示缺失），类别列使用Labels（空串表示缺失）
type Column struct {
	Name    string
	Numeric bool
	Values  []float64
	Labels  []string
}

// NewNumericColumn 创建数值列
func NewNumericColumn(name string, values []float64) *Column {
	return &Column{Name: name, Numeric: true, Values: values}
}

// NewCategoricalColumn 创建类别列
func NewCategoricalColumn(name string, labels []string) *Column {
	return &Column{Name: name, Labels: labels}
}

// Len 行数
func (c *Column) Len() int {
	if c.Numeric {
		return len(c.Values)
	}
	return len(c.Labels)
}

// Text 返回第i行的文本形式
func (c *Column) Text(i int) string {
	if !c.Numeric {
		return c.Labels[i]
	}
	if math.IsNaN(c.Values[i]) {
		return ""
	}
	return strconv.FormatFloat(c.Values[i], 'f', -1, 64)
}

// Coerce 转换为数值列，无法解析的值记为NaN，返回无法解析的非空值个数
func (c *Column) Coerce() int {
	if c.Numeric {
		return 0
	}
	values := make([]float64, len(c.Labels))
	invalid := 0
	for i, label := range c.Labels {
		v, ok := parseNumber(label)
		if !ok {
			values[i] = math.NaN()
			if label != "" {
				invalid++
			}
			continue
		}
		values[i] = v
	}
	c.Numeric = true
	c.Values = values
	c.Labels = nil
	return invalid
}

// Missing 缺失值个数
func (c *Column) Missing() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.Numeric && math.IsNaN(c.Values[i]) || !c.Numeric && c.Labels[i] == "" {
			n++
		}
	}
	return n
}

// Frame 按列存储的数据表，列顺序即特征顺序
type Frame struct {
	columns []*Column
	rows    int
}

// NewFrame 创建数据表
func NewFrame(columns ...*Column) (*Frame, error) {
	f := &Frame{rows: -1}
	for _, col := range columns {
		if err := f.Add(col); err != nil {
			return nil, err
		}
	}
	if f.rows < 0 {
		f.rows = 0
	}
	return f, nil
}

// Rows 行数
func (f *Frame) Rows() int {
	return f.rows
}

// Names 列名（按顺序）
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, col := range f.columns {
		names[i] = col.Name
	}
	return names
}

// Columns 返回列（按顺序）
func (f *Frame) Columns() []*Column {
	return append([]*Column(nil), f.columns...)
}

// Column 按名称查找列
func (f *Frame) Column(name string) (*Column, bool) {
	for _, col := range f.columns {
		if col.Name == name {
			return col, true
		}
	}
	return nil, false
}

// Add 在末尾追加列
func (f *Frame) Add(col *Column) error {
	if _, exists := f.Column(col.Name); exists {
		return fmt.Errorf("column %q already exists", col.Name)
	}
	if f.rows >= 0 && len(f.columns) > 0 && col.Len() != f.rows {
		return fmt.Errorf("column %q has %d rows, frame has %d", col.Name, col.Len(), f.rows)
	}
	f.columns = append(f.columns, col)
	f.rows = col.Len()
	return nil
}

// Drop 删除列，不存在的列忽略，返回实际删除的列名
func (f *Frame) Drop(names ...string) []string {
	drop := make(map[string]struct{}, len(names))
	for _, name := range names {
		drop[name] = struct{}{}
	}
	var dropped []string
	kept := f.columns[:0]
	for _, col := range f.columns {
		if _, ok := drop[col.Name]; ok {
			dropped = append(dropped, col.Name)
			continue
		}
		kept = append(kept, col)
	}
	f.columns = kept
	return dropped
}

// Filter 只保留keep[i]为true的行
func (f *Frame) Filter(keep []bool) error {
	if len(keep) != f.rows {
		return fmt.Errorf("filter mask has %d rows, frame has %d", len(keep), f.rows)
	}
	rows := 0
	for _, k := range keep {
		if k {
			rows++
		}
	}
	for _, col := range f.columns {
		if col.Numeric {
			values := make([]float64, 0, rows)
			for i, v := range col.Values {
				if keep[i] {
					values = append(values, v)
				}
			}
			col.Values = values
			continue
		}
		labels := make([]string, 0, rows)
		for i, l := range col.Labels {
			if keep[i] {
				labels = append(labels, l)
			}
		}
		col.Labels = labels
	}
	f.rows = rows
	return nil
}

func parseNumber(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
