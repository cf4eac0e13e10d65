package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yellow-pitaya/frontend-sub000/internal/parser"
	"github.com/yellow-pitaya/frontend-sub000/internal/synth"
	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// 生成 ACQ:SOURn:DATA? 格式的合成回复, 用于调试解析器和绘图
func main() {
	form := flag.String("form", "SINE", "波形 (SINE, SQUARE, TRIANGLE, SAWU, SAWD, DC, PWM)")
	amplitude := flag.Float64("amp", 0.5, "幅度 (V)")
	offset := flag.Float64("offset", 0, "直流偏置 (V)")
	frequency := flag.Float64("freq", 1000, "频率 (Hz)")
	duty := flag.Float64("duty", 0.5, "占空比, 只对 PWM 有效")
	dec := flag.Uint("dec", 64, "抽取系数")
	count := flag.Int("n", 16, "采样数")
	bad := flag.Int("bad", 0, "随机替换为坏值的采样数")
	check := flag.Bool("check", false, "解析生成的回复并显示统计")
	flag.Parse()

	f, err := protocol.ParseForm(*form)
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
	d := protocol.Decimation(*dec)
	if !d.Valid() {
		fmt.Fprintf(os.Stderr, "错误: 不支持的抽取系数 %d\n", *dec)
		os.Exit(1)
	}

	p := protocol.GeneratorParams{
		Form:      f,
		Amplitude: *amplitude,
		Offset:    *offset,
		Frequency: *frequency,
		DutyCycle: *duty,
	}
	xs := make([]float64, *count)
	for i := range xs {
		xs[i] = float64(i) / d.SampleRate()
	}
	samples, err := synth.Sample(p, xs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}

	reply := corrupt(parser.Format(samples), *bad)
	fmt.Println(reply)

	if *check {
		display(reply, d)
	}
}

// corrupt 把 n 个随机采样替换为无法解析的记号
func corrupt(reply string, n int) string {
	if n <= 0 {
		return reply
	}
	tokens := strings.Split(strings.Trim(reply, "{}"), ",")
	for i := 0; i < n && i < len(tokens); i++ {
		tokens[rand.Intn(len(tokens))] = "ERR"
	}
	return "{" + strings.Join(tokens, ",") + "}"
}

func display(reply string, d protocol.Decimation) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	res := parser.NewParser(log).Parse(reply)

	fmt.Printf("解析结果:\n")
	fmt.Printf("  采样数:   %d\n", len(res.Samples))
	fmt.Printf("  坏值:     %d\n", res.Faults)
	fmt.Printf("  采样率:   %s\n", d.RateLabel())
	fmt.Printf("  缓冲时长: %v\n", d.BufferDuration())
}
