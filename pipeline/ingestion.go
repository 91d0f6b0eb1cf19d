package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// missingTokens 视为缺失值的单元格内容（去除首尾空白后比较）
var missingTokens = map[string]struct{}{
	"":      {},
	"NaN":   {},
	"nan":   {},
	"NA":    {},
	"N/A":   {},
	"n/a":   {},
	"null":  {},
	"NULL":  {},
	"None":  {},
	"<nil>": {},
}

// LoadCSV 读取CSV文件
func LoadCSV(path, encodingName string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	frame, err := ReadCSV(file, encodingName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	zap.L().Info("dataset loaded",
		zap.String("path", path),
		zap.Int("rows", frame.Rows()),
		zap.Int("columns", len(frame.Names())))
	return frame, nil
}

// ReadCSV 解码并读取CSV，所有列先作为类别（文本）列载入，类型由清洗规则确定
func ReadCSV(r io.Reader, encodingName string) (*Frame, error) {
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}

	df := dataframe.ReadCSV(
		transform.NewReader(r, enc.NewDecoder()),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, df.Err
	}

	columns := make([]*Column, 0, df.Ncol())
	for _, name := range df.Names() {
		records := df.Col(name).Records()
		labels := make([]string, len(records))
		for i, record := range records {
			labels[i] = normalizeCell(record)
		}
		columns = append(columns, NewCategoricalColumn(strings.TrimSpace(name), labels))
	}
	return NewFrame(columns...)
}

func normalizeCell(text string) string {
	text = strings.TrimSpace(text)
	if _, missing := missingTokens[text]; missing {
		return ""
	}
	return text
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	case "gbk":
		return simplifiedchinese.GBK, nil
	case "gb18030":
		return simplifiedchinese.GB18030, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported csv encoding %q", name)
	}
}
