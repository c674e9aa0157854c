package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"i4.energy/across/serialterm/format"
	"i4.energy/across/serialterm/link"
	"i4.energy/across/serialterm/logbook"
)

var consoleLanguages = []language.Tag{language.English, language.Chinese}

func init() {
	message.SetString(language.English, "msg.status", "state: %s  device: %s  reading: %t")
	message.SetString(language.English, "msg.reason", "reason: %s")
	message.SetString(language.English, "msg.warning", "warning: %s")
	message.SetString(language.English, "msg.counters", "RX: %d chars  TX: %d bytes")
	message.SetString(language.English, "msg.no_device", "none")
	message.SetString(language.English, "msg.fixed", "(fixed)")
	message.SetString(language.English, "msg.no_ports", "no serial ports found")
	message.SetString(language.English, "msg.history_empty", "history is empty")
	message.SetString(language.English, "msg.tx_format", "send format: %s")
	message.SetString(language.English, "msg.refresh_rate", "refresh rate: %s")
	message.SetString(language.English, "msg.cleared", "log cleared")
	message.SetString(language.English, "msg.error", "error: %v")

	message.SetString(language.Chinese, "msg.status", "状态: %s  设备: %s  读取中: %t")
	message.SetString(language.Chinese, "msg.reason", "原因: %s")
	message.SetString(language.Chinese, "msg.warning", "警告: %s")
	message.SetString(language.Chinese, "msg.counters", "接收: %d 字符  发送: %d 字节")
	message.SetString(language.Chinese, "msg.no_device", "无")
	message.SetString(language.Chinese, "msg.fixed", "(已修复)")
	message.SetString(language.Chinese, "msg.no_ports", "未找到串口")
	message.SetString(language.Chinese, "msg.history_empty", "历史记录为空")
	message.SetString(language.Chinese, "msg.tx_format", "发送格式: %s")
	message.SetString(language.Chinese, "msg.refresh_rate", "刷新速率: %s")
	message.SetString(language.Chinese, "msg.cleared", "日志已清空")
	message.SetString(language.Chinese, "msg.error", "错误: %v")
}

// Console renders log entries and command output as text.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	p        *message.Printer
	rxFormat PayloadFormat
}

// NewConsole creates a Console writing to w in the supported language
// closest to lang.
func NewConsole(w io.Writer, lang string, rxFormat PayloadFormat) *Console {
	requested, _ := language.Parse(lang)
	tag, _, _ := language.NewMatcher(consoleLanguages).Match(requested)
	base, _ := tag.Base()
	return &Console{
		w:        w,
		p:        message.NewPrinter(language.Make(base.String())),
		rxFormat: rxFormat,
	}
}

// Render prints a committed batch of entries, one line each.
func (c *Console) Render(batch []logbook.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range batch {
		fmt.Fprintln(c.w, c.line(e))
	}
}

func (c *Console) line(e logbook.Entry) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(format.Time(e.Time))
	b.WriteString("] ")

	switch e.Direction {
	case logbook.DirectionRx:
		b.WriteString("RX ")
		text := e.Data
		if e.HasPrefix {
			text = e.Original
		}
		if c.rxFormat == FormatHex {
			b.WriteString(format.Hex([]byte(text), " "))
		} else {
			b.WriteString(format.ASCII([]byte(text)))
		}
		if e.Fixed {
			b.WriteString(" ")
			b.WriteString(c.p.Sprintf("msg.fixed"))
		}
	case logbook.DirectionTx:
		b.WriteString("TX ")
		b.WriteString(e.Data)
	default:
		if e.IsError {
			b.WriteString("!! ")
		} else {
			b.WriteString("-- ")
		}
		b.WriteString(e.Data)
	}
	return b.String()
}

// Status prints a session snapshot and the log counters.
func (c *Console) Status(st link.Status, rx, tx int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	device := c.p.Sprintf("msg.no_device")
	if st.Device != nil {
		device = st.Device.String()
	}
	c.p.Fprintln(c.w, c.p.Sprintf("msg.status", st.State.String(), device, st.Reading))
	if st.Err != "" {
		c.p.Fprintln(c.w, c.p.Sprintf("msg.reason", st.Err))
	}
	if st.Warning != "" {
		c.p.Fprintln(c.w, c.p.Sprintf("msg.warning", st.Warning))
	}
	c.p.Fprintln(c.w, c.p.Sprintf("msg.counters", rx, tx))
}

// Devices prints the available ports.
func (c *Console) Devices(devices []link.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(devices) == 0 {
		c.p.Fprintln(c.w, c.p.Sprintf("msg.no_ports"))
		return
	}
	for _, d := range devices {
		fmt.Fprintf(c.w, "  %s\n", d)
	}
}

// History prints the send history, most recent first.
func (c *Console) History(inputs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(inputs) == 0 {
		c.p.Fprintln(c.w, c.p.Sprintf("msg.history_empty"))
		return
	}
	for i, in := range inputs {
		fmt.Fprintf(c.w, "%2d  %s\n", i+1, in)
	}
}

// Notice prints a catalog message.
func (c *Console) Notice(key message.Reference, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.p.Fprintln(c.w, c.p.Sprintf(key, args...))
}

// Error prints err.
func (c *Console) Error(err error) {
	c.Notice("msg.error", err)
}
