package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output печатает результаты команд: данные в stdout, служебные
// сообщения в stderr, чтобы вывод оставался пригодным для пайпов.
type Output struct {
	jsonMode bool
	out      io.Writer
	err      io.Writer
}

// NewOutput создаёт Output. В json-режиме Print отдаёт JSON вместо таблицы.
func NewOutput(jsonMode bool) *Output {
	return &Output{jsonMode: jsonMode, out: os.Stdout, err: os.Stderr}
}

// Print выводит данные таблицей или, в json-режиме, как JSON.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table печатает выровненную таблицу с заголовком и подчёркиванием.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.out, 0, 0, 2, ' ', 0)

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}

	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	fmt.Fprintln(tw, strings.Join(underline, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON печатает значение с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success печатает сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.err, msg)
}

// Error печатает сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.err, "Error: "+msg)
}
