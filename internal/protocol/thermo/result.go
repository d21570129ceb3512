package thermo

import "github.com/taoyao-code/thermo-emulator/internal/device"

// Outcome 分发结果分类，覆盖全部失败原因
type Outcome uint8

const (
	OutcomeOK            Outcome = iota
	OutcomeUnknownCommand        // 未识别指令码
	OutcomeMissingParam          // 缺少必填参数
	OutcomeInternalError         // 处理过程中的内部错误
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeUnknownCommand:
		return "unknown_command"
	case OutcomeMissingParam:
		return "missing_param"
	case OutcomeInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Result 指令处理结果，由分发器编码为响应包
type Result struct {
	Outcome    Outcome
	Command    Command // 响应中回显的指令码
	Status     Status
	Fields     List   // 指令特定的结果字段
	Diagnostic string // ED 字段
	Err        error  // 内部错误原因

	// Alarms 本次处理引起的报警状态变化
	Alarms []device.AlarmTransition
}

func okResult(cmd Command, fields ...Item) Result {
	return Result{Outcome: OutcomeOK, Command: cmd, Status: StatusOK, Fields: fields}
}

func invalidParam(o Outcome, cmd Command, diag string) Result {
	return Result{Outcome: o, Command: cmd, Status: StatusInvalidParam, Diagnostic: diag}
}

// internalFailure 内部错误统一以 ping 指令码应答，保证传输层总能收到响应
func internalFailure(err error) Result {
	return Result{
		Outcome:    OutcomeInternalError,
		Command:    CmdPing,
		Status:     StatusInternalError,
		Diagnostic: err.Error(),
		Err:        err,
	}
}

// Items 响应载荷字段：IN, ST, 结果字段, ED
func (r Result) Items() List {
	items := make(List, 0, len(r.Fields)+3)
	items = append(items,
		Item{Tag: TagInstruction, Value: r.Command},
		Item{Tag: TagStatus, Value: r.Status},
	)
	items = append(items, r.Fields...)
	if r.Diagnostic != "" {
		items = append(items, Item{Tag: TagErrorDesc, Value: r.Diagnostic})
	}
	return items
}
