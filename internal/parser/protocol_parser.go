package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// FaultRecorder 记录坏采样数
type FaultRecorder interface {
	ObserveSampleFaults(n int)
}

// Result 解析结果
type Result struct {
	Samples []float64
	Faults  int
}

type Parser struct {
	log *logrus.Logger
	rec FaultRecorder
}

func NewParser(log *logrus.Logger) *Parser {
	return &Parser{log: log}
}

// SetRecorder 设置坏采样记录者
func (p *Parser) SetRecorder(rec FaultRecorder) {
	p.rec = rec
}

// Parse 解析 {v1,v2,...} 格式的缓冲区回复.
// 无法解析的采样记为 0.0 并继续, 保持缓冲区长度和对齐.
func (p *Parser) Parse(raw string) *Result {
	body := unwrap(raw)
	if body == "" {
		return &Result{}
	}

	tokens := strings.Split(body, ",")
	result := &Result{
		Samples: make([]float64, len(tokens)),
	}

	for i, tok := range tokens {
		tok = strings.TrimSpace(tok)
		v, err := strconv.ParseFloat(tok, 64)
		// NaN 和 Inf 同样视为坏值
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			result.Faults++
			p.log.WithFields(logrus.Fields{
				"index": i,
				"token": tok,
			}).Warn("采样值解析失败, 以 0 代替")
			continue
		}
		result.Samples[i] = v
	}

	if result.Faults > 0 && p.rec != nil {
		p.rec.ObserveSampleFaults(result.Faults)
	}
	return result
}

// unwrap 去掉可选的前导标记字符和首尾花括号
func unwrap(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '{'); i >= 0 && !strings.ContainsRune(s[:i], ',') {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "}")
	return strings.TrimSpace(s)
}

// Format 把采样序列编码为设备回复格式
func Format(samples []float64) string {
	var b strings.Builder
	b.Grow(len(samples)*8 + 2)
	b.WriteByte('{')
	for i, v := range samples {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	b.WriteByte('}')
	return b.String()
}
