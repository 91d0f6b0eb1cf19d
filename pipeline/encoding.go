package pipeline

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// OneHotRule 类别列展开为指示列 "<列名>_<类别>"，类别按字典序排列
type OneHotRule struct {
	// DropFirst drops the first sorted category of every column as the
	// reference level.
	DropFirst bool
}

func NewOneHotRule(dropFirst bool) *OneHotRule {
	return &OneHotRule{DropFirst: dropFirst}
}

func (r *OneHotRule) Name() string {
	return "one_hot"
}

// Apply 数值列保持原顺序，所有指示列按原类别列顺序追加在末尾
func (r *OneHotRule) Apply(frame *Frame, rec IssueRecorder) error {
	var encoded []string
	var indicators []*Column
	var sources []string
	var issues []QualityIssue
	for _, col := range frame.Columns() {
		if col.Numeric {
			continue
		}
		encoded = append(encoded, col.Name)
		dummies := r.encode(col)
		indicators = append(indicators, dummies...)
		for range dummies {
			sources = append(sources, col.Name)
		}
		issues = append(issues, QualityIssue{
			Type:     IssueEncoded,
			Severity: "low",
			Column:   col.Name,
			Count:    len(dummies),
			Message:  fmt.Sprintf("expanded into %d indicator columns", len(dummies)),
		})
	}

	if err := checkIndicatorNames(frame, encoded, indicators, sources); err != nil {
		return err
	}
	for _, issue := range issues {
		rec.Record(issue)
	}

	frame.Drop(encoded...)
	for _, col := range indicators {
		if err := frame.Add(col); err != nil {
			return err
		}
	}
	if len(encoded) > 0 {
		zap.L().Info("encoded categorical columns",
			zap.Strings("columns", encoded),
			zap.Int("indicators", len(indicators)))
	}
	return nil
}

// checkIndicatorNames 在修改frame之前检查指示列是否与保留列或其他指示列重名
func checkIndicatorNames(frame *Frame, encoded []string, indicators []*Column, sources []string) error {
	taken := make(map[string]string, len(frame.Columns())+len(indicators))
	dropped := make(map[string]struct{}, len(encoded))
	for _, name := range encoded {
		dropped[name] = struct{}{}
	}
	for _, name := range frame.Names() {
		if _, ok := dropped[name]; !ok {
			taken[name] = ""
		}
	}
	for i, col := range indicators {
		if source, ok := taken[col.Name]; ok {
			if source == "" {
				return fmt.Errorf("%w: indicator %q of %q collides with existing column", ErrColumnCollision, col.Name, sources[i])
			}
			return fmt.Errorf("%w: indicator %q produced twice (also by %q)", ErrColumnCollision, col.Name, source)
		}
		taken[col.Name] = sources[i]
	}
	return nil
}

func (r *OneHotRule) encode(col *Column) []*Column {
	categories := Categories(col.Labels)
	if r.DropFirst && len(categories) > 0 {
		categories = categories[1:]
	}

	dummies := make([]*Column, len(categories))
	index := make(map[string]int, len(categories))
	for i, category := range categories {
		dummies[i] = NewNumericColumn(IndicatorName(col.Name, category), make([]float64, len(col.Labels)))
		index[category] = i
	}
	for row, label := range col.Labels {
		if i, ok := index[label]; ok {
			dummies[i].Values[row] = 1
		}
	}
	return dummies
}

// Categories 去重并排序后的非空类别
func Categories(labels []string) []string {
	seen := make(map[string]struct{})
	var categories []string
	for _, label := range labels {
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		categories = append(categories, label)
	}
	sort.Strings(categories)
	return categories
}

// IndicatorName 指示列名称
func IndicatorName(column, category string) string {
	return column + "_" + category
}
