package pipeline

import (
	"fmt"
	"math"

	"etaengine/schema"
)

// Dataset 模型输入：特征矩阵、目标向量以及列顺序（即特征schema）
type Dataset struct {
	X       [][]float64
	Y       []float64
	Columns []string
}

// Dataset 将清洗后的表转换为特征矩阵，目标列之外的所有列按顺序成为特征
func (dc *DataCleaner) Dataset(frame *Frame) (*Dataset, error) {
	target, ok := frame.Column(schema.Target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, schema.Target)
	}
	if frame.Rows() == 0 {
		return nil, fmt.Errorf("%s: %w", schema.Target, ErrNoValidValues)
	}

	var features []*Column
	for _, col := range frame.Columns() {
		if col.Name == schema.Target {
			continue
		}
		if !col.Numeric {
			return nil, fmt.Errorf("column %q is not numeric", col.Name)
		}
		features = append(features, col)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no feature columns")
	}

	ds := &Dataset{
		X:       make([][]float64, frame.Rows()),
		Y:       make([]float64, frame.Rows()),
		Columns: make([]string, len(features)),
	}
	for j, col := range features {
		ds.Columns[j] = col.Name
	}
	for i := range ds.X {
		row := make([]float64, len(features))
		for j, col := range features {
			v := col.Values[i]
			if math.IsNaN(v) {
				return nil, fmt.Errorf("row %d column %q: missing value after cleaning", i+1, col.Name)
			}
			row[j] = v
		}
		ds.X[i] = row
		ds.Y[i] = target.Values[i]
	}
	return ds, nil
}

// Prepare 清洗并生成数据集
func (dc *DataCleaner) Prepare(frame *Frame) (*Dataset, error) {
	if err := dc.Clean(frame); err != nil {
		return nil, err
	}
	return dc.Dataset(frame)
}
