package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shaiso/Pipewright/internal/domain"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Text выводит текст как есть (скрипт pipeline).
func (o *Output) Text(s string) {
	io.WriteString(o.w, s)
}

// Issues выводит проблемы сборки в stderr: по одной строке на проблему.
// В JSON режиме проблемы — часть данных и здесь не выводятся.
func (o *Output) Issues(issues []domain.Issue) {
	if o.jsonMode {
		return
	}
	for _, issue := range issues {
		where := ""
		if issue.Node != 0 {
			where = fmt.Sprintf(" [pid %d", issue.Node)
			if issue.Slot != "" {
				where += " slot " + issue.Slot
			}
			where += "]"
		}
		fmt.Fprintf(o.errW, "%s %s%s: %s\n", issue.Severity, issue.Code, where, issue.Message)
	}
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr одной строкой.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, strings.ReplaceAll(msg, "\n", "; "))
}
