package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taoyao-code/thermo-emulator/internal/client"
	"github.com/taoyao-code/thermo-emulator/internal/logging"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

var (
	clientAddr    string
	clientParams  []string
	clientFormat  string
	clientTimeout time.Duration
)

var clientCmd = &cobra.Command{
	Use:   "client <command>",
	Short: "Send one command to a running emulator",
	Long: `Sends a host request over TCP and prints the device response.

The command is a 4-byte code (ping, temp, gdat, gtim, sdat, stim, galm, salm, glog)
or its long name (get-temperature, set-alarms, ...).

Examples:
  thermo-emulator client ping
  thermo-emulator client glog --param T1=0 --param T2=900 --param MX=10
  thermo-emulator client salm --param AL=0:10:30,1:15:35
  thermo-emulator client stim --param HH=12 --param MM=30 --param SS=0 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runClient,
}

func init() {
	clientCmd.Flags().StringVar(&clientAddr, "addr", "127.0.0.1:7000", "Emulator TCP address")
	clientCmd.Flags().StringArrayVarP(&clientParams, "param", "p", nil, "Request parameter TAG=VALUE (repeatable)")
	clientCmd.Flags().StringVar(&clientFormat, "format", "table", "Output format: table or json")
	clientCmd.Flags().DurationVar(&clientTimeout, "timeout", 5*time.Second, "Request timeout")
}

func runClient(cmd *cobra.Command, args []string) error {
	command, err := thermo.ParseCommandName(args[0])
	if err != nil {
		return err
	}
	items := make([]thermo.Item, 0, len(clientParams))
	for _, p := range clientParams {
		it, err := parseParam(p)
		if err != nil {
			return err
		}
		items = append(items, it)
	}
	if clientFormat != "table" && clientFormat != "json" {
		return fmt.Errorf("unknown format %q", clientFormat)
	}

	lvl, _ := cmd.Flags().GetString("log-level")
	logger := logging.NewConsoleLogger(cmd.ErrOrStderr(), lvl)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	defer cancel()
	c, err := client.Dial(ctx, clientAddr, client.WithLogger(logger))
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.Do(ctx, command, items...)
	if err != nil {
		return err
	}
	if clientFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), resp)
	}
	writeTable(cmd.OutOrStdout(), resp)
	return nil
}

// responseView 响应的 JSON 形式
type responseView struct {
	Command      string         `json:"command"`
	Status       string         `json:"status"`
	PacketNumber uint16         `json:"packet_number"`
	Diagnostic   string         `json:"diagnostic,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
}

func toView(resp *thermo.Response) responseView {
	v := responseView{
		Command:      resp.Command.String(),
		Status:       resp.Status.String(),
		PacketNumber: resp.Packet.Number,
		Diagnostic:   resp.Diagnostic,
	}
	if len(resp.Fields) > 0 {
		v.Fields = make(map[string]any, len(resp.Fields))
		for _, f := range resp.Fields {
			v.Fields[strings.TrimSpace(f.Tag)] = fieldValue(f)
		}
	}
	return v
}

// fieldValue 嵌套列表按已知记录结构展开
func fieldValue(f thermo.TypedField) any {
	list, ok := f.Value.(thermo.TypedFields)
	if !ok {
		return f.Value
	}
	switch f.Tag {
	case thermo.TagAlarmList:
		return thermo.DecodeAlarms(list)
	case thermo.TagLogList:
		return thermo.DecodeLog(list)
	}
	out := make(map[string]any, len(list))
	for _, sub := range list {
		out[strings.TrimSpace(sub.Tag)] = fieldValue(sub)
	}
	return out
}

func writeJSON(w io.Writer, resp *thermo.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toView(resp))
}

func writeTable(w io.Writer, resp *thermo.Response) {
	v := toView(resp)
	status := color.New(color.FgGreen, color.Bold)
	if resp.Status != thermo.StatusOK {
		status = color.New(color.FgRed, color.Bold)
	}
	label := color.New(color.FgCyan)

	fmt.Fprintf(w, "%s %s\n", label.Sprint("command:"), v.Command)
	fmt.Fprintf(w, "%s %s\n", label.Sprint("status: "), status.Sprint(v.Status))
	fmt.Fprintf(w, "%s %d\n", label.Sprint("packet: "), v.PacketNumber)
	if v.Diagnostic != "" {
		fmt.Fprintf(w, "%s %s\n", label.Sprint("error:  "), color.YellowString(v.Diagnostic))
	}

	tags := make([]string, 0, len(v.Fields))
	for t := range v.Fields {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	for _, t := range tags {
		fmt.Fprintf(w, "%s %s\n", label.Sprint(t+":"), formatValue(v.Fields[t]))
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float32:
		return fmt.Sprintf("%.2f", x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
