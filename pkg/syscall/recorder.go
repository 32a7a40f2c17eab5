package syscall

import (
	"encoding/base64"
	"strings"
)

// Recorder is a Host that meters compute with a ComputeMeter and keeps
// every log line, in the same "Program log:" / "Program data:" form the
// validator emits.
type Recorder struct {
	meter        *ComputeMeter
	logs         []string
	returnData   []byte
	returnDataID [32]byte
	exceeded     bool
}

// NewRecorder creates a Recorder with the given compute budget.
func NewRecorder(budget uint64) *Recorder {
	return &Recorder{
		meter: NewComputeMeter(budget),
		logs:  make([]string, 0),
	}
}

func (r *Recorder) Log(msg string) {
	r.logs = append(r.logs, "Program log: "+msg)
}

func (r *Recorder) LogData(data [][]byte) {
	parts := make([]string, len(data))
	for i, d := range data {
		parts[i] = base64.StdEncoding.EncodeToString(d)
	}
	r.logs = append(r.logs, "Program data: "+strings.Join(parts, " "))
}

func (r *Recorder) SetReturnData(programID [32]byte, data []byte) error {
	if len(data) > MaxReturnData {
		return ErrReturnDataTooBig
	}
	r.returnData = append(r.returnData[:0], data...)
	r.returnDataID = programID
	return nil
}

func (r *Recorder) ReturnData() ([32]byte, []byte) {
	return r.returnDataID, r.returnData
}

func (r *Recorder) ConsumeCU(cost uint64) error {
	err := r.meter.Consume(cost)
	if err != nil {
		r.exceeded = true
	}
	return err
}

// Exceeded reports whether any charge failed for lack of compute.
func (r *Recorder) Exceeded() bool {
	return r.exceeded
}

func (r *Recorder) RemainingCU() uint64 {
	return r.meter.Remaining()
}

// Logs returns the recorded log lines.
func (r *Recorder) Logs() []string {
	return r.logs
}

// Meter returns the underlying compute meter.
func (r *Recorder) Meter() *ComputeMeter {
	return r.meter
}

var _ Host = (*Recorder)(nil)
